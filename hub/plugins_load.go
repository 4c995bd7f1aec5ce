package hub

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadPluginsInDir scans dir for *.lua scripts and loads each one as a
// LuaPlugin, grounded on the plugin-directory convention
// cmd/adchubd/cmd/serve.go inherited from the teacher's own "plugins.path"
// config key. Compiled-in plugins (myip and friends) are registered
// directly by cmd/adchubd/cmd/serve.go instead, since Go has no dynamic
// loading story equivalent to the original's shared-library plugin ABI.
func (h *Hub) LoadPluginsInDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(ent.Name()), ".lua") {
			continue
		}
		name := strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name()))
		path := filepath.Join(dir, ent.Name())
		p := NewLuaPlugin(name, path)
		if err := h.LoadPlugin(p); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlugin initializes p against this hub and registers it, used both by
// LoadPluginsInDir and by cmd/adchubd/cmd/serve.go's compiled-in plugins.
func (h *Hub) LoadPlugin(p Plugin) error {
	if err := p.Init(h, ""); err != nil {
		return err
	}
	h.Plugins.Register(p)
	h.dispatchEvent(EventPluginStarted, nil, p.Name())
	return nil
}