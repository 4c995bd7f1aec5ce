package hub

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dcpp-hub/adchub/adc"
)

// UserInfo is a typed view over a peer's INF key/value parameters
// (spec.md §3 "User-info"). Keys are always two characters.
type UserInfo struct {
	m map[string]string
}

// NewUserInfo returns an empty UserInfo.
func NewUserInfo() *UserInfo { return &UserInfo{m: make(map[string]string)} }

// ParseUserInfo parses the BINF/IINF key/value tokens that follow the SID
// token (i.e. tokens[2:] of a BINF line).
func ParseUserInfo(tokens []string) *UserInfo {
	u := NewUserInfo()
	for _, t := range tokens {
		if len(t) < 2 {
			continue
		}
		u.m[t[:2]] = t[2:]
	}
	return u
}

// Get returns the value for a key, or "" if unset.
func (u *UserInfo) Get(key string) string { return u.m[key] }

// Has reports whether key is present (even with an empty value).
func (u *UserInfo) Has(key string) bool { _, ok := u.m[key]; return ok }

// Set assigns a key's value.
func (u *UserInfo) Set(key, val string) { u.m[key] = val }

// Nick returns the NI key, NFC-normalized so that visually identical
// nicknames in different Unicode forms compare equal (spec.md glossary
// "nicknames are unique"; see roster.go).
func (u *UserInfo) Nick() string { return norm.NFC.String(u.Get("NI")) }

// CID returns the ID key as an adc.CID.
func (u *UserInfo) CID() adc.CID { return adc.CID(u.Get("ID")) }

// Op reports whether the peer carries the OP1 operator flag.
func (u *UserInfo) Op() bool { return u.Get("OP") == "1" }

// Features returns the peer's supported-feature set, from the SU key.
func (u *UserInfo) Features() adc.FeatureSet { return adc.ParseSUList(u.Get("SU")) }

// IsUDPActive reports whether the peer advertises a non-empty U4 or U6
// (spec.md glossary "UDP-active peer").
func (u *UserInfo) IsUDPActive() bool {
	return u.Get("U4") != "" || u.Get("U6") != ""
}

// Valid checks the login invariant from spec.md §3: NI present, and at
// least one of I4/I6 present. ID presence/validity is checked separately
// by the session since it needs the CID, not just this record.
func (u *UserInfo) Valid() bool {
	return u.Get("NI") != "" && (u.Get("I4") != "" || u.Get("I6") != "")
}

// Merge overlays fields from other onto u (used when a peer sends a later
// BINF that updates only some keys).
func (u *UserInfo) Merge(other *UserInfo) {
	for k, v := range other.m {
		u.m[k] = v
	}
}

// Clone returns a deep copy.
func (u *UserInfo) Clone() *UserInfo {
	m := make(map[string]string, len(u.m))
	for k, v := range u.m {
		m[k] = v
	}
	return &UserInfo{m: m}
}

// Tokens renders the key/value pairs as wire tokens, in a stable
// (sorted-by-key) order so that output is deterministic and testable.
func (u *UserInfo) Tokens() []string {
	keys := make([]string, 0, len(u.m))
	for k := range u.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + u.m[k]
	}
	return out
}

// InfLine renders a full "BINF <sid> <tokens...>" wire line.
func (u *UserInfo) InfLine(sid adc.SID) string {
	tokens := append([]string{"BINF", adc.SIDString(sid)}, u.Tokens()...)
	return adc.EncodeLine(tokens) + "\n"
}

// redundantWith reports whether every key/value pair in other already
// holds in u, i.e. applying other as an update would change nothing. Used
// to reject the "redundant INF parameter" case from the original hub
// (original_source/ADCClient.cpp:handleInfo).
func (u *UserInfo) redundantWith(other *UserInfo) bool {
	if len(other.m) == 0 {
		return true
	}
	for k, v := range other.m {
		if cur, ok := u.m[k]; !ok || cur != v {
			return false
		}
	}
	return true
}

func normalizeNick(nick string) string { return norm.NFC.String(strings.TrimSpace(nick)) }
