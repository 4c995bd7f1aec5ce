package hub

import (
	"fmt"
	"log"
	"sync"

	"github.com/blang/semver"
)

// Action is the set of effects a plugin callback may have on the event it
// received. Grounded on original_source/src/Plugin.h's Action enum; Go
// lacks C++'s template-enforced "legal bits per event" trick
// (ActionType<Event, AllowedBits>), so legality is checked at dispatch
// time against each Event's Allowed() set instead.
type Action uint8

const (
	// Modify lets the plugin rewrite the event's mutable fields in place.
	Modify Action = 1 << iota
	// Handle marks the event as having been fully handled by the plugin;
	// later plugins still run unless Stop is also set.
	Handle
	// Stop prevents any later plugin from seeing this event.
	Stop
	// Disconnect makes the code that dispatched the event close the
	// originating connection once the plugin chain returns (legal for the
	// connect, login and line-level events; see allowedActions).
	Disconnect
)

// Event identifies one point in the hub's lifecycle a plugin can hook.
// The full catalogue mirrors Plugin.h's event enum.
type Event int

const (
	EventPluginStarted Event = iota
	EventPluginStopped
	EventMessage // hub-wide operator broadcast message

	EventClientConnected
	EventClientDisconnected
	EventClientLine
	EventClientLogin
	EventClientInfo

	EventUserConnected
	EventUserDisconnected
	EventUserCommand
	EventUserMessage
	EventUserPrivateMessage

	EventInterConnected
	EventInterDisconnected
	EventInterLine
)

// allowedActions restricts which Action bits make sense for each Event,
// mirroring the per-event typedefs at the bottom of Plugin.h (e.g.
// "typedef ActionType<CLIENT_LINE, MODIFY|HANDLE|STOP|DISCONNECT>
// ClientLine;").
var allowedActions = map[Event]Action{
	EventPluginStarted:      0,
	EventPluginStopped:      0,
	EventMessage:            Stop,
	EventClientConnected:    Disconnect,
	EventClientDisconnected: 0,
	EventClientLine:         Modify | Handle | Stop | Disconnect,
	EventClientLogin:        Stop | Disconnect,
	EventClientInfo:         Modify | Stop,
	EventUserConnected:      0,
	EventUserDisconnected:   0,
	EventUserCommand:        Handle | Stop,
	EventUserMessage:        Modify | Stop,
	EventUserPrivateMessage: Modify | Stop,
	EventInterConnected:     0,
	EventInterDisconnected:  0,
	EventInterLine:          Modify | Handle | Stop | Disconnect,
}

// Allowed reports whether every bit set in a is legal for e.
func (e Event) Allowed(a Action) bool { return a&^allowedActions[e] == 0 }

// Context carries one event's payload plus the accumulated Action result
// across the plugin chain for that event.
type Context struct {
	Event  Event
	Hub    *Hub
	Peer   Peer
	Line   string // mutable: a Modify callback may rewrite this
	Extra  map[string]interface{}
	Result Action
}

// Set ORs a (validated) action into the context's result.
func (c *Context) Set(a Action) {
	if !c.Event.Allowed(a) {
		return
	}
	c.Result |= a
}

// Is reports whether bit a is set in the accumulated result.
func (c *Context) Is(a Action) bool { return c.Result&a != 0 }

// Plugin is the interface every hub extension implements, grounded on
// hub/plugins/myip/myip.go's Name/Version/Init/Close shape and on the
// callback list in Plugin.h.
type Plugin interface {
	Name() string
	Version() semver.Version
	Init(h *Hub, path string) error
	Close() error
}

// EventHandler is implemented by plugins that want to observe a
// particular Event. A plugin registers one per event it cares about;
// unlike the C++ original's single God-object base class, this lets a Go
// plugin embed only the handlers it needs.
type EventHandler interface {
	HandleEvent(ctx *Context)
}

// Command is a chat command a plugin exposes to users, e.g. !myip.
// Grounded on hub.RegisterCommand in hub/plugins/myip/myip.go.
type Command struct {
	Name string
	Help string
	Fn   func(ctx *Context, args []string)
}

// PluginManager owns the set of loaded plugins and dispatches events to
// them in registration order, honoring Stop.
type PluginManager struct {
	mu       sync.RWMutex
	plugins  []Plugin
	handlers map[Event][]EventHandler
	commands map[string]Command
}

// NewPluginManager returns an empty PluginManager.
func NewPluginManager() *PluginManager {
	return &PluginManager{
		handlers: make(map[Event][]EventHandler),
		commands: make(map[string]Command),
	}
}

// Register adds a plugin to the chain. It attaches no event handlers: a
// plugin receives events only for the handlers it registers through
// RegisterHandler, even if it implements EventHandler itself.
func (pm *PluginManager) Register(p Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.plugins = append(pm.plugins, p)
}

// RegisterHandler attaches h to fire whenever ev is dispatched.
func (pm *PluginManager) RegisterHandler(ev Event, h EventHandler) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.handlers[ev] = append(pm.handlers[ev], h)
}

// RegisterCommand exposes a chat command, e.g. "!myip".
func (pm *PluginManager) RegisterCommand(c Command) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.commands[c.Name] = c
}

// Command looks up a registered command by name.
func (pm *PluginManager) Command(name string) (Command, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	c, ok := pm.commands[name]
	return c, ok
}

// Dispatch runs every handler registered for ctx.Event in order, stopping
// early if a handler sets Stop. Panics in a handler are recovered and
// logged so one misbehaving plugin cannot take down a session goroutine.
func (pm *PluginManager) Dispatch(ctx *Context) {
	pm.mu.RLock()
	handlers := append([]EventHandler(nil), pm.handlers[ctx.Event]...)
	pm.mu.RUnlock()
	for _, h := range handlers {
		pm.runHandler(h, ctx)
		if ctx.Is(Stop) {
			return
		}
	}
}

func (pm *PluginManager) runHandler(h EventHandler, ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("plugin: handler panicked on event %d: %v", ctx.Event, r)
			if ctx.Hub != nil {
				ctx.Hub.Metrics.PluginPanics.Inc()
			}
		}
	}()
	h.HandleEvent(ctx)
}

// CloseAll shuts every loaded plugin down in reverse registration order.
func (pm *PluginManager) CloseAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var firstErr error
	for i := len(pm.plugins) - 1; i >= 0; i-- {
		if err := pm.plugins[i].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing plugin %s: %w", pm.plugins[i].Name(), err)
		}
	}
	return firstErr
}
