package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventAllowedRejectsIllegalBits(t *testing.T) {
	require.True(t, EventClientLine.Allowed(Modify|Handle|Stop|Disconnect))
	require.False(t, EventUserConnected.Allowed(Stop))
	require.True(t, EventClientInfo.Allowed(Modify))
	require.False(t, EventClientInfo.Allowed(Disconnect))
}

func TestContextSetIgnoresIllegalAction(t *testing.T) {
	ctx := &Context{Event: EventClientInfo}
	ctx.Set(Disconnect) // not legal for this event
	require.False(t, ctx.Is(Disconnect))

	ctx.Set(Modify)
	require.True(t, ctx.Is(Modify))
}

type recordingHandler struct {
	calls *int
	set   Action
}

func (h *recordingHandler) HandleEvent(ctx *Context) {
	*h.calls++
	ctx.Set(h.set)
}

func TestPluginManagerDispatchStopsChain(t *testing.T) {
	pm := NewPluginManager()
	var aCalls, bCalls int
	pm.RegisterHandler(EventClientLine, &recordingHandler{calls: &aCalls, set: Stop})
	pm.RegisterHandler(EventClientLine, &recordingHandler{calls: &bCalls, set: 0})

	ctx := &Context{Event: EventClientLine}
	pm.Dispatch(ctx)

	require.Equal(t, 1, aCalls)
	require.Equal(t, 0, bCalls)
	require.True(t, ctx.Is(Stop))
}

type panickingHandler struct{}

func (panickingHandler) HandleEvent(ctx *Context) { panic("boom") }

func TestPluginManagerDispatchRecoversPanic(t *testing.T) {
	pm := NewPluginManager()
	pm.RegisterHandler(EventClientLine, panickingHandler{})
	var after int
	pm.RegisterHandler(EventClientLine, &recordingHandler{calls: &after, set: 0})

	h := &Hub{Metrics: NewMetrics()}
	ctx := &Context{Event: EventClientLine, Hub: h}

	require.NotPanics(t, func() { pm.Dispatch(ctx) })
	require.Equal(t, 1, after)
}

func TestPluginManagerCommandRoundTrip(t *testing.T) {
	pm := NewPluginManager()
	called := false
	pm.RegisterCommand(Command{
		Name: "ping",
		Fn:   func(ctx *Context, args []string) { called = true },
	})

	cmd, ok := pm.Command("ping")
	require.True(t, ok)
	cmd.Fn(&Context{}, nil)
	require.True(t, called)

	_, ok = pm.Command("missing")
	require.False(t, ok)
}
