package hub

import (
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/go-irc/irc"

	"github.com/dcpp-hub/adchub/adc"
)

// IRC bridging lets a plain IRC client join the hub's global chat as a
// read/write participant without speaking ADC at all. Grounded on the
// teacher's own hub/hub_irc.go (ServeIRC/ircHandshake/ircAccept), rebuilt
// against this project's Roster/Peer types instead of the unretrieved
// BasePeer/Room/Search machinery the original bridge depended on.
const ircHubChan = "#hub"

// ServeIRC runs the IRC protocol handshake and chat loop for one accepted
// connection, mirroring it into the Roster as a Peer so ADC clients and
// IRC clients share one chat.
func (h *Hub) ServeIRC(conn net.Conn) error {
	h.Metrics.ConnectionsTotal.Inc()
	h.Metrics.ConnectionsOpen.Inc()
	defer h.Metrics.ConnectionsOpen.Dec()

	peer, err := h.ircHandshake(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer peer.Close()

	for {
		m, err := peer.readMessage()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		switch m.Command {
		case "PING":
			m.Command = "PONG"
			if err := peer.writeMessage(m); err != nil {
				return err
			}
		case "PRIVMSG":
			if len(m.Params) != 2 {
				return fmt.Errorf("invalid chat command: %#v", m)
			}
			dst, msg := m.Params[0], m.Params[1]
			if dst == ircHubChan {
				if !h.getGlobalChatEnabled() {
					continue
				}
				h.BroadcastChat(peer.sid, msg)
			} else if target, ok := h.Roster.ByNick(dst); ok {
				buf := adc.Line1("DMSG", adc.SIDString(peer.sid), adc.SIDString(target.SID()), msg)
				target.Send(buf)
			}
		case "QUIT":
			return nil
		default:
			if adc.Debug {
				log.Printf("irc %s: unhandled %s", peer.RemoteAddr(), m.Command)
			}
		}
	}
}

func (h *Hub) ircHandshake(conn net.Conn) (*ircPeer, error) {
	c := irc.NewConn(conn)
	host, _, _ := net.SplitHostPort(conn.LocalAddr().String())
	pref := &irc.Prefix{Name: host}

	var name, user string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		m, err := c.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("expected nick: %w", err)
		}
		if m.Command != "NICK" || len(m.Params) != 1 {
			return nil, fmt.Errorf("expected nick, got: %#v", m)
		}
		tname := m.Params[0]
		if name == "" {
			m, err = c.ReadMessage()
			if err != nil {
				return nil, fmt.Errorf("expected user: %w", err)
			}
			if m.Command != "USER" || len(m.Params) != 4 {
				return nil, fmt.Errorf("expected user, got: %#v", m)
			}
			user = m.Params[0]
		}
		name = normalizeNick(tname)
		if name == "" {
			continue
		}
		if _, taken := h.Roster.ByNick(name); taken {
			c.WriteMessage(&irc.Message{Prefix: pref, Command: "433", Params: []string{"*", name, "nickname in use"}})
			continue
		}
		break
	}

	if h.IsPrivate() {
		return nil, fmt.Errorf("hub is private")
	}
	conn.SetReadDeadline(time.Time{})

	sid, err := h.Servers.NextSID()
	if err != nil {
		return nil, err
	}
	info := NewUserInfo()
	info.Set("NI", name)
	info.Set("ID", string(ircSyntheticCID(sid)))
	peer := &ircPeer{
		hub:      h,
		sid:      sid,
		info:     info,
		hostPref: pref,
		ownPref:  &irc.Prefix{Name: name, User: user, Host: host},
		conn:     conn,
		c:        c,
	}
	if err := h.ircAccept(peer); err != nil {
		return nil, err
	}
	return peer, nil
}

// ircSyntheticCID fabricates a stable, never-colliding CID for a bridged
// IRC user out of its SID, since IRC carries no client identifier of its
// own.
func ircSyntheticCID(sid adc.SID) adc.CID {
	v := adc.SIDToUint32(sid)
	raw := make([]byte, 8)
	raw[0], raw[1], raw[2], raw[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	return adc.CID(adc.EncodeSalt(raw))
}

func (h *Hub) ircAccept(peer *ircPeer) error {
	name := peer.Nick()
	msgs := []*irc.Message{
		{Prefix: peer.hostPref, Command: "001", Params: []string{name, fmt.Sprintf("Welcome to %s, %s", h.getName(), name)}},
		{Prefix: peer.hostPref, Command: "002", Params: []string{name, "adchub IRC bridge"}},
		{Prefix: peer.hostPref, Command: "003", Params: []string{name, "hub started"}},
	}
	for _, m := range msgs {
		if err := peer.writeMessage(m); err != nil {
			return err
		}
	}

waitJoin:
	for {
		m, err := peer.readMessage()
		if err != nil {
			return err
		}
		switch m.Command {
		case "PING":
			m.Command = "PONG"
			if err := peer.writeMessage(m); err != nil {
				return err
			}
		case "JOIN":
			if len(m.Params) != 1 || m.Params[0] != ircHubChan {
				return fmt.Errorf("expected the user to join %s", ircHubChan)
			}
			break waitJoin
		}
	}
	if err := peer.writeMessage(&irc.Message{Prefix: peer.ownPref, Command: "JOIN", Params: []string{ircHubChan}}); err != nil {
		return err
	}

	h.Roster.Commit(peer)
	h.Metrics.SessionsActive.Inc()
	buf := adc.NewBuffer(peer.info.InfLine(peer.sid))
	h.Roster.Broadcast(buf, peer.sid, true)
	return nil
}

// ircPeer adapts one IRC connection to the Peer interface so Roster
// broadcasts reach it the same way they reach an ADC Session; messages
// routed to it are rendered as IRC PRIVMSGs instead of raw ADC lines.
type ircPeer struct {
	hub  *Hub
	sid  adc.SID
	info *UserInfo

	hostPref *irc.Prefix
	ownPref  *irc.Prefix
	conn     net.Conn

	rmu, wmu sync.Mutex
	c        *irc.Conn
}

func (p *ircPeer) SID() adc.SID             { return p.sid }
func (p *ircPeer) CID() adc.CID             { return p.info.CID() }
func (p *ircPeer) Nick() string             { return p.info.Nick() }
func (p *ircPeer) Info() *UserInfo          { return p.info }
func (p *ircPeer) Features() adc.FeatureSet { return adc.FeatureSet{} }
func (p *ircPeer) Local() bool              { return true }

// Send decodes the shared ADC buffer enough to pull out chat text and
// forwards it as an IRC PRIVMSG; anything that isn't a chat-shaped
// message is dropped, since IRC has no equivalent wire format to relay
// it verbatim in.
func (p *ircPeer) Send(buf *adc.Buffer) {
	line, err := adc.DecodeLine(trimNewline(string(buf.Bytes())))
	if err != nil || line.Empty() {
		return
	}
	h, ok := line.Header()
	if !ok || h.Cmd != "MSG" {
		return
	}
	// the text follows the sender SID (and, for D/E, the target SID);
	// trailing named flags such as PM are not part of it.
	idx := 2
	switch h.Type {
	case 'D', 'E':
		idx = 3
	case 'I':
		idx = 1
	}
	if len(line.Tokens) <= idx {
		return
	}
	text := line.Tokens[idx]
	p.writeMessage(&irc.Message{Prefix: p.hostPref, Command: "PRIVMSG", Params: []string{ircHubChan, text}})
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}

func (p *ircPeer) writeMessage(m *irc.Message) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.c.WriteMessage(m)
}

func (p *ircPeer) readMessage() (*irc.Message, error) {
	p.rmu.Lock()
	defer p.rmu.Unlock()
	return p.c.ReadMessage()
}

func (p *ircPeer) Close() error {
	p.hub.Roster.Remove(p)
	p.hub.Metrics.SessionsActive.Dec()
	return p.conn.Close()
}

func (p *ircPeer) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }
