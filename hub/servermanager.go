package hub

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/dcpp-hub/adchub/adc"
)

// ServerManager owns this hub's identity within a federation: its shard
// bits within the 32-bit SID space, and the set of other hubs it is
// connected to. Grounded on references to ServerManager::getHubSidMask()
// in original_source/src/ClientManager.cpp; the original keeps this as a
// process-wide singleton, split out here into an explicit, testable type
// per spec.md §4.6.
type ServerManager struct {
	mu sync.Mutex

	shardWidth uint // number of high bits reserved to identify this hub, 0-20
	shardID    uint32

	localSeq uint32 // low-bit counter for SIDs minted by this hub

	hubs map[uint32]*FederatedHub // shardID -> hub, excluding self
}

// FederatedHub is what this hub knows about a peer hub in the federation
// (spec.md §4.6): its shard identity and its interhub session, if linked.
type FederatedHub struct {
	ShardID uint32
	Name    string
	Link    *InterHub // nil if known but not currently connected
}

// NewServerManager builds a ServerManager for a hub owning shardID within
// a shardWidth-bit-wide federation (width 0 means this hub is the whole
// federation and every SID is local).
func NewServerManager(shardWidth uint, shardID uint32) *ServerManager {
	return &ServerManager{
		shardWidth: shardWidth,
		shardID:    shardID & shardMask(shardWidth),
		hubs:       make(map[uint32]*FederatedHub),
	}
}

func shardMask(width uint) uint32 {
	if width == 0 {
		return 0
	}
	return ^uint32(0) << (32 - width)
}

// ShardWidth returns the number of high bits that identify a hub.
func (s *ServerManager) ShardWidth() uint { return s.shardWidth }

// IsLocal reports whether sid's shard bits match this hub's shard ID,
// i.e. whether it names a peer connected directly to this process rather
// than one reachable only through a federated hub.
func (s *ServerManager) IsLocal(sid adc.SID) bool {
	mask := shardMask(s.shardWidth)
	if mask == 0 {
		return true
	}
	return adc.SIDToUint32(sid)&mask == s.shardID
}

// NextSID mints a fresh locally-owned SID: shard bits from this hub's
// identity, low bits from an incrementing counter salted with a random
// start so restarts don't immediately reuse recently-freed SIDs. The
// counter bits are kept within the low 20 bits that a four-character SID
// token carries.
func (s *ServerManager) NextSID() (adc.SID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localSeq == 0 {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return adc.SID{}, err
		}
		s.localSeq = binary.BigEndian.Uint32(b[:]) | 1
	}
	mask := shardMask(s.shardWidth)
	localBits := s.localSeq &^ mask & (1<<20 - 1)
	s.localSeq++
	return adc.Uint32ToSID(s.shardID | localBits), nil
}

// AddFederatedHub registers a hub this one can forward traffic to.
func (s *ServerManager) AddFederatedHub(h *FederatedHub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hubs[h.ShardID&shardMask(s.shardWidth)] = h
}

// FederatedHubFor returns the hub responsible for sid's shard, if any.
func (s *ServerManager) FederatedHubFor(sid adc.SID) (*FederatedHub, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[adc.SIDToUint32(sid)&shardMask(s.shardWidth)]
	return h, ok
}

// FederatedHubs returns a snapshot of every known federated hub.
func (s *ServerManager) FederatedHubs() []*FederatedHub {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FederatedHub, 0, len(s.hubs))
	for _, h := range s.hubs {
		out = append(out, h)
	}
	return out
}
