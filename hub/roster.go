package hub

import (
	"sync"

	"github.com/dcpp-hub/adchub/adc"
)

// Peer is anything that can receive a fanned-out buffer: a locally
// connected session or a handle standing in for a user on a federated
// hub (hub/interhub.go). Grounded on other_examples' hub_adc.go Peer
// interface and on original_source/src/ClientManager.cpp, which treats
// local and remote users identically once they're in the roster.
type Peer interface {
	SID() adc.SID
	CID() adc.CID
	Nick() string
	Info() *UserInfo
	Features() adc.FeatureSet
	Send(buf *adc.Buffer)
	Local() bool
}

// Roster is the hub's client manager: the authoritative map from SID,
// CID and nickname to a Peer, plus the broadcast/direct routing that
// reads it. One Roster per Hub; safe for concurrent use from every
// session goroutine. Grounded on original_source/src/ClientManager.cpp
// (addLocalClient/addRemoteClient/removeClient/broadcast/direct), redone
// with a mutex instead of the original's single reactor thread per the
// concurrency redesign recorded in SPEC_FULL.md.
type Roster struct {
	mu      sync.RWMutex
	bySID   map[adc.SID]Peer
	byCID   map[adc.CID]Peer
	byNick  map[string]Peer
	pending map[adc.SID]bool // SIDs reserved during IDENTIFY, not yet visible to broadcast
}

// NewRoster returns an empty Roster.
func NewRoster() *Roster {
	return &Roster{
		bySID:   make(map[adc.SID]Peer),
		byCID:   make(map[adc.CID]Peer),
		byNick:  make(map[string]Peer),
		pending: make(map[adc.SID]bool),
	}
}

// Reserve tentatively claims a SID/CID/nick tuple before the peer's BINF
// has been broadcast, so a second login racing for the same identity is
// rejected without ever exposing a half-initialized peer to broadcast().
// Mirrors the two-phase bind in other_examples' hub_adc.go ("logging"
// map) used to close the race the original single-threaded reactor
// avoided for free.
func (r *Roster) Reserve(sid adc.SID, cid adc.CID, nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCID[cid]; ok {
		return false
	}
	if _, ok := r.byNick[nick]; ok {
		return false
	}
	r.pending[sid] = true
	return true
}

// CancelReserve releases a tentative reservation (handshake failed).
func (r *Roster) CancelReserve(sid adc.SID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, sid)
}

// Commit promotes a reserved peer to a fully visible roster entry. Called
// once the session reaches the NORMAL state (spec.md §4.2 login).
func (r *Roster) Commit(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, p.SID())
	r.bySID[p.SID()] = p
	r.byCID[p.CID()] = p
	r.byNick[p.Nick()] = p
}

// Remove drops a peer from every index (spec.md §4.2 logout).
func (r *Roster) Remove(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, p.SID())
	if cur, ok := r.bySID[p.SID()]; ok && cur == p {
		delete(r.bySID, p.SID())
	}
	if cur, ok := r.byCID[p.CID()]; ok && cur == p {
		delete(r.byCID, p.CID())
	}
	if cur, ok := r.byNick[p.Nick()]; ok && cur == p {
		delete(r.byNick, p.Nick())
	}
}

// UpdateIndexes re-keys a peer whose nickname changed via a later BINF.
// Only rewrites the nick index; SID and CID never change after login.
func (r *Roster) UpdateIndexes(p Peer, oldNick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byNick[oldNick]; ok && cur == p {
		delete(r.byNick, oldNick)
	}
	r.byNick[p.Nick()] = p
}

// BySID looks up a peer by session ID.
func (r *Roster) BySID(sid adc.SID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.bySID[sid]
	return p, ok
}

// ByCID looks up a peer by client ID.
func (r *Roster) ByCID(cid adc.CID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byCID[cid]
	return p, ok
}

// ByNick looks up a peer by nickname.
func (r *Roster) ByNick(nick string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byNick[nick]
	return p, ok
}

// HasCID reports whether cid belongs to a committed roster entry, the
// check the session needs before accepting a login (spec.md §4.2: CID
// busy). Reservations still pending are not counted.
func (r *Roster) HasCID(cid adc.CID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCID[cid]
	return ok
}

// All returns a snapshot slice of every peer in the hub (local and
// federated), for All()/userlist-style consumers. Grounded on
// ClientManager::getAllInHub, minus the shard-mask filtering that moved
// to servermanager.go since a Roster no longer needs to know about
// federation to do basic routing.
func (r *Roster) All() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.bySID))
	for _, p := range r.bySID {
		out = append(out, p)
	}
	return out
}

// Count returns the number of peers currently in the roster.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// Broadcast fans a single shared buffer out to every peer except, when
// echo is false, the sender itself. Grounded on
// ClientManager::broadcast, which likewise builds one Buffer and posts
// the same pointer to every socket's write queue.
func (r *Roster) Broadcast(buf *adc.Buffer, from adc.SID, echo bool) {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.bySID))
	for sid, p := range r.bySID {
		if sid == from && !echo {
			continue
		}
		peers = append(peers, p)
	}
	r.mu.RUnlock()
	for _, p := range peers {
		p.Send(buf)
	}
}

// BroadcastFeature fans a buffer out only to peers whose feature set
// satisfies clauses. Grounded on ClientManager::broadcastFeature.
func (r *Roster) BroadcastFeature(buf *adc.Buffer, from adc.SID, echo bool, clauses []adc.FeatureClause) {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.bySID))
	for sid, p := range r.bySID {
		if sid == from && !echo {
			continue
		}
		if !adc.Matches(clauses, p.Features()) {
			continue
		}
		peers = append(peers, p)
	}
	r.mu.RUnlock()
	for _, p := range peers {
		p.Send(buf)
	}
}

// Direct sends a buffer to exactly one target SID, returning false if no
// such peer exists (routeDirect then sends the sender a "target not
// found" status, per spec.md §4.3 D/E-type routing). Grounded on
// ClientManager::direct.
func (r *Roster) Direct(buf *adc.Buffer, target adc.SID) bool {
	r.mu.RLock()
	p, ok := r.bySID[target]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	p.Send(buf)
	return true
}
