// Package myip implements the hub's "!myip" chat command: the one
// built-in plugin carried over from the teacher repo almost unchanged,
// adapted to this project's Plugin/Command/Context shapes.
package myip

import (
	"net"

	"github.com/blang/semver"

	"github.com/dcpp-hub/adchub/hub"
)

type myIP struct {
	h *hub.Hub
}

// New returns an unregistered myip plugin; cmd/adchubd wires it into the
// hub's PluginManager at startup.
func New() hub.Plugin { return &myIP{} }

func (*myIP) Name() string { return "MyIP" }

func (*myIP) Version() semver.Version { return semver.MustParse("2.0.0") }

func (p *myIP) Init(h *hub.Hub, path string) error {
	p.h = h
	h.Plugins.RegisterCommand(hub.Command{
		Name: "myip",
		Help: "shows your current IP address",
		Fn:   p.cmdIP,
	})
	return nil
}

// remoteAddresser is implemented by peers with an underlying socket
// (Session, ircPeer); a federated RemotePeer has none, so the command
// simply reports nothing for it.
type remoteAddresser interface {
	RemoteAddr() net.Addr
}

func (p *myIP) cmdIP(ctx *hub.Context, args []string) {
	ra, ok := ctx.Peer.(remoteAddresser)
	if !ok {
		return
	}
	host, _, _ := net.SplitHostPort(ra.RemoteAddr().String())
	p.h.PrivateChat(p.h.BotSID(), ctx.Peer.SID(), "- "+host)
}

func (p *myIP) Close() error { return nil }
