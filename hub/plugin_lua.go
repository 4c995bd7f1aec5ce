package hub

import (
	"fmt"
	"os"

	"github.com/blang/semver"
	lua "github.com/direct-connect/go-lua"
)

// LuaPlugin loads a single Lua script as a Plugin, exposing hub events as
// Lua functions the script may define (on_client_line, on_user_message,
// ...). This supplements the fixed-event C++ plugin ABI
// (original_source/src/Plugin.h) with a scripting option the original
// hub never had but that most DC++ hub deployments layered on via
// third-party script engines; see SPEC_FULL.md Section B.
type LuaPlugin struct {
	name string
	path string
	vm   *lua.State
	hub  *Hub
}

// NewLuaPlugin returns an unloaded LuaPlugin for the script at path.
func NewLuaPlugin(name, path string) *LuaPlugin {
	return &LuaPlugin{name: name, path: path}
}

func (p *LuaPlugin) Name() string { return p.name }

func (p *LuaPlugin) Version() semver.Version { return semver.MustParse("0.1.0") }

// Init loads and runs the script once, registering any on_* globals it
// defines as event handlers for the lifetime of the plugin.
func (p *LuaPlugin) Init(h *Hub, path string) error {
	src, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading lua plugin %s: %w", p.name, err)
	}
	p.hub = h
	l := lua.NewState()
	lua.OpenLibraries(l)
	l.Register("hubBroadcast", p.luaBroadcast)
	l.Register("hubKick", p.luaKick)
	if err := lua.DoString(l, string(src)); err != nil {
		return fmt.Errorf("loading lua plugin %s: %w", p.name, err)
	}
	p.vm = l
	for ev, global := range luaHookNames {
		l.Global(global)
		isFn := l.IsFunction(-1)
		l.Pop(1)
		if !isFn {
			continue
		}
		h.Plugins.RegisterHandler(ev, &luaHandler{vm: l, fn: global})
	}
	return nil
}

// Close returns nil without tearing anything down; the handlers Init
// registered stay attached.
func (p *LuaPlugin) Close() error {
	return nil
}

var luaHookNames = map[Event]string{
	EventClientLine:         "on_client_line",
	EventClientLogin:        "on_client_login",
	EventUserMessage:        "on_user_message",
	EventUserPrivateMessage: "on_user_private_message",
	EventUserCommand:        "on_user_command",
}

// luaBroadcast and luaKick are the Go-side implementations of the
// hubBroadcast(text)/hubKick(nick, reason) functions scripts call back
// into, the boundary that keeps a script from reaching raw socket state.
func (p *LuaPlugin) luaBroadcast(l *lua.State) int {
	text, _ := l.ToString(1)
	p.hub.BroadcastChat(p.hub.BotSID(), text)
	return 0
}

func (p *LuaPlugin) luaKick(l *lua.State) int {
	nick, _ := l.ToString(1)
	reason, _ := l.ToString(2)
	if peer, ok := p.hub.Roster.ByNick(nick); ok {
		p.hub.Disconnect(peer, reason, true)
	}
	return 0
}

// luaHandler adapts one Lua global function into an EventHandler.
type luaHandler struct {
	vm *lua.State
	fn string
}

func (lh *luaHandler) HandleEvent(ctx *Context) {
	nick := ""
	if ctx.Peer != nil {
		nick = ctx.Peer.Nick()
	}
	lh.vm.Global(lh.fn)
	lh.vm.PushString(nick)
	lh.vm.PushString(ctx.Line)
	if err := lh.vm.ProtectedCall(2, 2, 0); err != nil {
		return
	}
	stop, _ := lh.vm.ToBoolean(-1)
	modified, _ := lh.vm.ToString(-2)
	lh.vm.Pop(2)
	if modified != "" && modified != ctx.Line {
		ctx.Line = modified
		ctx.Set(Modify)
	}
	if stop {
		ctx.Set(Stop)
	}
}
