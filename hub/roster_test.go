package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcpp-hub/adchub/adc"
)

// fakePeer is a minimal Peer used across hub package tests; it records
// every buffer sent to it instead of touching a real socket.
type fakePeer struct {
	sid  adc.SID
	cid  adc.CID
	nick string
	fs   adc.FeatureSet

	received []*adc.Buffer
}

func newFakePeer(sid adc.SID, cid adc.CID, nick string) *fakePeer {
	return &fakePeer{sid: sid, cid: cid, nick: nick, fs: adc.FeatureSet{}}
}

func (p *fakePeer) SID() adc.SID             { return p.sid }
func (p *fakePeer) CID() adc.CID             { return p.cid }
func (p *fakePeer) Nick() string             { return p.nick }
func (p *fakePeer) Info() *UserInfo          { return NewUserInfo() }
func (p *fakePeer) Features() adc.FeatureSet { return p.fs }
func (p *fakePeer) Local() bool              { return true }
func (p *fakePeer) Send(buf *adc.Buffer)     { p.received = append(p.received, buf) }

func TestRosterReserveRejectsDuplicateCIDAndNick(t *testing.T) {
	r := NewRoster()
	require.True(t, r.Reserve(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice"))
	require.False(t, r.Reserve(adc.Uint32ToSID(2), "AAAAAAAAAAAAA", "bob"))
	require.False(t, r.Reserve(adc.Uint32ToSID(3), "BBBBBBBBBBBBB", "alice"))
}

func TestRosterCancelReserveFreesIdentity(t *testing.T) {
	r := NewRoster()
	require.True(t, r.Reserve(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice"))
	r.CancelReserve(adc.Uint32ToSID(1))
	require.True(t, r.Reserve(adc.Uint32ToSID(2), "AAAAAAAAAAAAA", "alice"))
}

func TestRosterCommitMakesPeerVisible(t *testing.T) {
	r := NewRoster()
	p := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	require.True(t, r.Reserve(p.sid, p.cid, p.nick))
	r.Commit(p)

	got, ok := r.BySID(adc.Uint32ToSID(1))
	require.True(t, ok)
	require.Equal(t, p, got)

	got, ok = r.ByCID("AAAAAAAAAAAAA")
	require.True(t, ok)
	require.Equal(t, p, got)

	got, ok = r.ByNick("alice")
	require.True(t, ok)
	require.Equal(t, p, got)

	require.Equal(t, 1, r.Count())
	require.True(t, r.HasCID("AAAAAAAAAAAAA"))
}

func TestRosterRemoveOnlyDropsIfStillCurrent(t *testing.T) {
	r := NewRoster()
	p1 := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	r.Commit(p1)

	// a stale peer value for the same SID must not evict the live one
	stale := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	r.Remove(stale)
	_, ok := r.BySID(adc.Uint32ToSID(1))
	require.True(t, ok)

	r.Remove(p1)
	_, ok = r.BySID(adc.Uint32ToSID(1))
	require.False(t, ok)
	require.Equal(t, 0, r.Count())
}

func TestRosterUpdateIndexesRekeysNick(t *testing.T) {
	r := NewRoster()
	p := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	r.Commit(p)

	p.nick = "alicia"
	r.UpdateIndexes(p, "alice")

	_, ok := r.ByNick("alice")
	require.False(t, ok)
	got, ok := r.ByNick("alicia")
	require.True(t, ok)
	require.Equal(t, p, got)
}

func TestRosterBroadcastHonorsEcho(t *testing.T) {
	r := NewRoster()
	a := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	b := newFakePeer(adc.Uint32ToSID(2), "BBBBBBBBBBBBA", "bob")
	r.Commit(a)
	r.Commit(b)

	buf := adc.Line1("BMSG", "AAAA", "hi")
	r.Broadcast(buf, adc.Uint32ToSID(1), false)
	require.Empty(t, a.received)
	require.Len(t, b.received, 1)

	r.Broadcast(buf, adc.Uint32ToSID(1), true)
	require.Len(t, a.received, 1)
	require.Len(t, b.received, 2)
}

func TestRosterDirectMissingTargetReturnsFalse(t *testing.T) {
	r := NewRoster()
	buf := adc.Line1("DMSG", "AAAA", "BBBB", "hi")
	require.False(t, r.Direct(buf, adc.Uint32ToSID(99)))
}

func TestRosterDirectDeliversToExactTarget(t *testing.T) {
	r := NewRoster()
	a := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	b := newFakePeer(adc.Uint32ToSID(2), "BBBBBBBBBBBBA", "bob")
	r.Commit(a)
	r.Commit(b)

	buf := adc.Line1("DMSG", "AAAA", "BBBB", "hi")
	require.True(t, r.Direct(buf, adc.Uint32ToSID(2)))
	require.Len(t, b.received, 1)
	require.Empty(t, a.received)
}

func TestRosterBroadcastFeatureFiltersByClause(t *testing.T) {
	r := NewRoster()
	a := newFakePeer(adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	a.fs = adc.FeatureSet{"TCP4": true}
	b := newFakePeer(adc.Uint32ToSID(2), "BBBBBBBBBBBBA", "bob")
	b.fs = adc.FeatureSet{}
	r.Commit(a)
	r.Commit(b)

	clauses, err := adc.ParseFeatureSelector([]string{"+TCP4"})
	require.NoError(t, err)

	buf := adc.Line1("FSCH", "AAAA", "+TCP4", "ANfoo")
	r.BroadcastFeature(buf, adc.Uint32ToSID(1), true, clauses)
	require.Len(t, a.received, 1)
	require.Empty(t, b.received)
}
