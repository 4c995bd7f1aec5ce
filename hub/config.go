package hub

import (
	"fmt"
	"sort"
	"strconv"
)

// Map is a nested string-keyed bag of config values, the shape viper
// hands back from a YAML document (SPEC_FULL.md Section A.1). It's also
// how a plugin's own settings sub-tree is passed to Plugin.Init.
type Map map[string]interface{}

const (
	ConfigHubName    = "hub.name"
	ConfigHubDesc    = "hub.desc"
	ConfigHubTopic   = "hub.topic"
	ConfigHubOwner   = "hub.owner"
	ConfigHubWebsite = "hub.website"
	ConfigHubEmail   = "hub.email"
	ConfigBotName    = "bot.name"
	ConfigBotDesc    = "bot.desc"
	ConfigHubMOTD    = "hub.motd"
	ConfigHubPrivate = "hub.private"

	ConfigChatGlobalEnabled = "chat.global.enabled"

	ConfigZlibLevel          = "zlib.level"
	ConfigIdleTimeoutSeconds = "serve.idle_timeout_seconds"

	// Federation keys supplement the original config surface: the
	// original single-process hub had no notion of shard bits, so these
	// are new rather than adapted (SPEC_FULL.md Section A.1).
	ConfigFederationShardWidth = "federation.shard_width"
	ConfigFederationShardID    = "federation.shard_id"
	ConfigFederationPeers      = "federation.peers"
)

var configAliases = map[string]string{
	"name":    ConfigHubName,
	"desc":    ConfigHubDesc,
	"topic":   ConfigHubTopic,
	"owner":   ConfigHubOwner,
	"website": ConfigHubWebsite,
	"email":   ConfigHubEmail,
	"botname": ConfigBotName,
	"botdesc": ConfigBotDesc,
	"motd":    ConfigHubMOTD,
	"private": ConfigHubPrivate,
}

// configIgnored holds keys that can only be set from the config file,
// not via a live SetConfig call (spec.md keeps these out of runtime
// reach since they affect listener/storage setup that can't be
// rebound once the hub is serving).
var configIgnored = map[string]struct{}{
	"database.path":            {},
	"database.type":            {},
	"plugins.path":             {},
	"serve.host":               {},
	"serve.port":               {},
	"serve.tls.cert":           {},
	"serve.tls.key":            {},
	ConfigFederationShardWidth: {},
	ConfigFederationShardID:    {},
}

// MergeConfig overlays a freshly loaded YAML document onto the hub's
// live config, flattening nested maps into dotted keys.
func (h *Hub) MergeConfig(m Map) {
	h.MergeConfigPath("", m)
}

func (h *Hub) MergeConfigPath(path string, m Map) {
	for k, v := range m {
		if path != "" {
			k = path + "." + k
		}
		switch v := v.(type) {
		case Map:
			h.MergeConfigPath(k, v)
		case map[string]interface{}:
			h.MergeConfigPath(k, Map(v))
		default:
			h.setConfig(k, v, false)
		}
	}
}

func (h *Hub) setConfigMap(key string, val interface{}) {
	if _, ok := configIgnored[key]; ok {
		return
	}
	h.conf.Lock()
	if h.conf.m == nil {
		h.conf.m = make(Map)
	}
	h.conf.m[key] = val
	h.conf.Unlock()
}

func (h *Hub) getConfigMap(key string) (interface{}, bool) {
	h.conf.RLock()
	val, ok := h.conf.m[key]
	h.conf.RUnlock()
	return val, ok
}

func (h *Hub) setConfig(key string, val interface{}, save bool) {
	if _, ok := configIgnored[key]; ok {
		return
	}
	switch val := val.(type) {
	case bool:
		h.setConfigBool(key, val)
	case string:
		h.setConfigString(key, val)
	case int:
		h.setConfigInt(key, int64(val))
	case int64:
		h.setConfigInt(key, val)
	case int32:
		h.setConfigInt(key, int64(val))
	case uint32:
		h.setConfigInt(key, int64(val))
	case float64:
		h.setConfigInt(key, int64(val))
	default:
		panic(fmt.Errorf("unsupported config type: %T", val))
	}
	_ = save
}

// SetConfig sets key to val, dispatching on val's dynamic type the way
// viper's untyped YAML values arrive.
func (h *Hub) SetConfig(key string, val interface{}) {
	h.setConfig(key, val, true)
}

// ConfigKeys lists every known config key plus any ad-hoc ones a plugin
// has stashed in the map, sorted so the output order is stable.
func (h *Hub) ConfigKeys() []string {
	keys := []string{
		ConfigHubName, ConfigHubDesc, ConfigHubTopic, ConfigHubMOTD,
		ConfigHubOwner, ConfigHubWebsite, ConfigHubEmail,
		ConfigBotName, ConfigBotDesc, ConfigHubPrivate,
		ConfigChatGlobalEnabled, ConfigZlibLevel, ConfigIdleTimeoutSeconds,
		ConfigFederationShardWidth, ConfigFederationShardID,
	}
	h.conf.RLock()
	for k := range h.conf.m {
		keys = append(keys, k)
	}
	h.conf.RUnlock()
	sort.Strings(keys)
	return dedupStrings(keys)
}

func dedupStrings(in []string) []string {
	out := in[:0]
	var last string
	for i, s := range in {
		if i > 0 && s == last {
			continue
		}
		out = append(out, s)
		last = s
	}
	return out
}

// GetConfig returns a key's value regardless of its concrete type.
func (h *Hub) GetConfig(key string) (interface{}, bool) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	return h.getConfigMap(key)
}

func (h *Hub) setConfigString(key string, val string) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	h.setConfigMap(key, val)
}

// SetConfigString sets a string-valued key.
func (h *Hub) SetConfigString(key string, val string) { h.setConfigString(key, val) }

// GetConfigString returns a string-valued key, stringifying non-string
// values rather than failing the lookup.
func (h *Hub) GetConfigString(key string) (string, bool) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	v, ok := h.getConfigMap(key)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func (h *Hub) setConfigBool(key string, val bool) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	h.setConfigMap(key, val)
}

// SetConfigBool sets a bool-valued key.
func (h *Hub) SetConfigBool(key string, val bool) { h.setConfigBool(key, val) }

// GetConfigBool returns a bool-valued key, coercing common scalar
// encodings (the map may hold values deserialized from YAML/JSON).
func (h *Hub) GetConfigBool(key string) (bool, bool) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	v, ok := h.getConfigMap(key)
	if !ok || v == nil {
		return false, false
	}
	switch v := v.(type) {
	case bool:
		return v, true
	case int64:
		return v != 0, true
	case float64:
		return v != 0, true
	case string:
		b, _ := strconv.ParseBool(v)
		return b, true
	default:
		return false, true
	}
}

func (h *Hub) setConfigInt(key string, val int64) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	h.setConfigMap(key, val)
}

// SetConfigInt sets an int-valued key.
func (h *Hub) SetConfigInt(key string, val int64) { h.setConfigInt(key, val) }

// GetConfigInt returns an int-valued key, coercing common scalar
// encodings.
func (h *Hub) GetConfigInt(key string) (int64, bool) {
	if alias, ok := configAliases[key]; ok {
		key = alias
	}
	v, ok := h.getConfigMap(key)
	if !ok || v == nil {
		return 0, false
	}
	switch v := v.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i, true
	default:
		return 0, true
	}
}

// --- typed convenience wrappers over the map, filling the role the
// original config.go delegated to hub.go primitives that weren't part of
// this project's surviving snapshot. ---

func (h *Hub) setName(v string) { h.setConfigString(ConfigHubName, v) }
func (h *Hub) getName() string  { v, _ := h.GetConfigString(ConfigHubName); return v }

func (h *Hub) setDesc(v string) { h.setConfigString(ConfigHubDesc, v) }
func (h *Hub) getDesc() string  { v, _ := h.GetConfigString(ConfigHubDesc); return v }

func (h *Hub) setOwner(v string) { h.setConfigString(ConfigHubOwner, v) }
func (h *Hub) getOwner() string  { v, _ := h.GetConfigString(ConfigHubOwner); return v }

func (h *Hub) setBotName(v string) { h.setConfigString(ConfigBotName, v) }
func (h *Hub) getBotName() string  { v, _ := h.GetConfigString(ConfigBotName); return v }

func (h *Hub) setMOTD(v string) { h.setConfigString(ConfigHubMOTD, v) }
func (h *Hub) getMOTD() string  { v, _ := h.GetConfigString(ConfigHubMOTD); return v }

// IsPrivate reports whether the hub hides itself from public hub lists.
func (h *Hub) IsPrivate() bool { v, _ := h.GetConfigBool(ConfigHubPrivate); return v }

func (h *Hub) setGlobalChatEnabled(v bool) { h.setConfigBool(ConfigChatGlobalEnabled, v) }
func (h *Hub) getGlobalChatEnabled() bool {
	v, ok := h.GetConfigBool(ConfigChatGlobalEnabled)
	if !ok {
		return true
	}
	return v
}

func (h *Hub) setZlibLevel(v int) { h.setConfigInt(ConfigZlibLevel, int64(v)) }
func (h *Hub) zlibLevel() int {
	v, ok := h.GetConfigInt(ConfigZlibLevel)
	if !ok {
		return 6
	}
	return int(v)
}
