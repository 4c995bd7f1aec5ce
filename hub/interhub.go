package hub

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/dcpp-hub/adchub/adc"
)

// InterHub is a session to another hub in the federation: it mirrors that
// hub's local users into our Roster as remote Peers, and forwards our
// traffic destined for its shard onward. Grounded on spec.md §4.6 and on
// Hub.h's interConnects map; the DNS-resolved dialing step is grounded on
// original_source/src/DNSAdapter.cpp, reimplemented with
// net.Resolver.LookupIPAddr run on its own goroutine rather than the
// c-ares callback the original used — that file's own comment that "DNS
// is the only source of parallelism" in the reactor becomes literal here:
// it really is a second goroutine, not a simulated one.
type InterHub struct {
	hub     *Hub
	shardID uint32
	name    string

	mu      sync.Mutex
	conn    *adc.Conn
	remotes map[adc.SID]*RemotePeer
	closing chan struct{}
}

// RemotePeer is a Peer that lives on a federated hub; Send forwards the
// buffer across the interhub link instead of a local socket. Grounded on
// ClientManager::direct's branch for a user "not in our hub".
type RemotePeer struct {
	link *InterHub
	sid  adc.SID
	cid  adc.CID
	info *UserInfo
}

func (r *RemotePeer) SID() adc.SID             { return r.sid }
func (r *RemotePeer) CID() adc.CID             { return r.cid }
func (r *RemotePeer) Nick() string             { return r.info.Nick() }
func (r *RemotePeer) Info() *UserInfo          { return r.info }
func (r *RemotePeer) Features() adc.FeatureSet { return r.info.Features() }
func (r *RemotePeer) Local() bool              { return false }
func (r *RemotePeer) Send(buf *adc.Buffer)     { r.link.conn.Enqueue(buf) }

// ResolveAndDial looks up host's addresses on a dedicated goroutine and
// connects to the first one that succeeds, returning a connected
// InterHub. Grounded on DNSAdapter.cpp's async resolve-then-connect
// sequence.
func ResolveAndDial(ctx context.Context, h *Hub, name string, shardID uint32, host string, port int) (*InterHub, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resolver := &net.Resolver{}
		addrs, err := resolver.LookupIPAddr(ctx, host)
		if err != nil {
			done <- result{err: fmt.Errorf("resolving %s: %w", host, err)}
			return
		}
		var lastErr error
		for _, a := range addrs {
			addr := net.JoinHostPort(a.IP.String(), fmt.Sprint(port))
			conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
			if err == nil {
				done <- result{conn: conn}
				return
			}
			lastErr = err
		}
		done <- result{err: lastErr}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return newInterHub(h, name, shardID, r.conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newInterHub(h *Hub, name string, shardID uint32, nc net.Conn) *InterHub {
	return &InterHub{
		hub:     h,
		name:    name,
		shardID: shardID,
		conn:    adc.NewConn(nc),
		remotes: make(map[adc.SID]*RemotePeer),
		closing: make(chan struct{}),
	}
}

// Serve runs the interhub read loop: an IQUI drops a mirrored remote
// peer, a BINF adds or refreshes one, and every other frame is forwarded
// into our own Roster.
func (ih *InterHub) Serve() {
	defer ih.conn.Close()
	for {
		line, err := ih.conn.ReadLine(time.Time{})
		if err != nil {
			logInterHub(ih.name, err)
			return
		}
		if line.Empty() {
			continue
		}
		h, ok := line.Header()
		if !ok {
			continue
		}
		switch {
		case h.Type == 'I' && h.Cmd == "QUI" && len(line.Tokens) >= 2:
			ih.handleRemoteQuit(line)
		case h.Type == 'B' && h.Cmd == "INF" && len(line.Tokens) >= 2:
			ih.handleRemoteInfo(line)
		default:
			ih.forwardInbound(line)
		}
	}
}

func (ih *InterHub) handleRemoteInfo(line adc.Line) {
	sid, err := adc.ParseSID(line.Tokens[1])
	if err != nil {
		return
	}
	info := ParseUserInfo(line.Tokens[2:])
	ih.mu.Lock()
	rp, ok := ih.remotes[sid]
	if !ok {
		rp = &RemotePeer{link: ih, sid: sid, cid: info.CID(), info: info}
		ih.remotes[sid] = rp
		ih.mu.Unlock()
		ih.hub.Roster.Commit(rp)
		return
	}
	rp.info = info
	ih.mu.Unlock()
}

func (ih *InterHub) handleRemoteQuit(line adc.Line) {
	sid, err := adc.ParseSID(line.Tokens[1])
	if err != nil {
		return
	}
	ih.mu.Lock()
	rp, ok := ih.remotes[sid]
	delete(ih.remotes, sid)
	ih.mu.Unlock()
	if ok {
		ih.hub.Roster.Remove(rp)
	}
}

// forwardInbound re-broadcasts a frame that arrived from the federated
// hub into our own local roster, dropping anything whose SID belongs to
// us (loop prevention via the shard-mask invariant from spec.md §4.6).
func (ih *InterHub) forwardInbound(line adc.Line) {
	if len(line.Tokens) < 2 {
		return
	}
	from, err := adc.ParseSID(line.Tokens[1])
	if err != nil || ih.hub.Servers.IsLocal(from) {
		return
	}
	buf := adc.NewBuffer(line.Raw + "\n")
	ih.mu.Lock()
	rp := ih.remotes[from]
	ih.mu.Unlock()
	if rp == nil {
		return
	}
	ih.hub.Roster.Broadcast(buf, from, true)
}

// ForwardOutbound enqueues a locally-originated buffer on the link to the
// federated hub.
func (ih *InterHub) ForwardOutbound(buf *adc.Buffer) {
	ih.conn.Enqueue(buf)
}

// Close tears the link down and drops every mirrored remote peer.
func (ih *InterHub) Close() error {
	ih.mu.Lock()
	remotes := make([]*RemotePeer, 0, len(ih.remotes))
	for _, rp := range ih.remotes {
		remotes = append(remotes, rp)
	}
	ih.remotes = nil
	ih.mu.Unlock()
	for _, rp := range remotes {
		ih.hub.Roster.Remove(rp)
	}
	close(ih.closing)
	return ih.conn.Close()
}

func logInterHub(name string, err error) {
	log.Printf("interhub %s: %v", name, err)
}
