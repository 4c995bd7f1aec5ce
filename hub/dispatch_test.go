package hub

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcpp-hub/adchub/adc"
)

// mustSID parses a four-character wire token into the SID it denotes,
// failing the test on a bad token. Tests that assert on decoded wire
// text build their fixture SIDs through this rather than Uint32ToSID so
// the two always agree on what e.g. "BBBB" means.
func mustSID(t *testing.T, s string) adc.SID {
	sid, err := adc.ParseSID(s)
	require.NoError(t, err)
	return sid
}

// newCommittedSession wires up a Session with a live net.Pipe conn and
// commits it to h's roster under sid/cid/nick, skipping the handshake so
// dispatch-level behavior can be tested directly.
func newCommittedSession(t *testing.T, h *Hub, sid adc.SID, cid adc.CID, nick string) (*Session, *bufio.Reader) {
	server, cli := net.Pipe()
	s := newSession(h, server)
	s.sid = sid
	s.info.Set("NI", nick)
	s.info.Set("ID", string(cid))
	s.info.Set("I4", "1.2.3.4")
	s.state = StateNormal
	require.True(t, h.Roster.Reserve(sid, cid, nick))
	h.Roster.Commit(s)
	t.Cleanup(func() { cli.Close() })
	return s, bufio.NewReader(cli)
}

func TestRouteDirectDeliversAndEchoes(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, mustSID(t, "AAAA"), "AAAAAAAAAAAAA", "alice")
	_, bobR := newCommittedSession(t, h, mustSID(t, "BBBB"), "BBBBBBBBBBBBA", "bob")

	line, err := adc.DecodeLine("DMSG AAAA BBBB hi")
	require.NoError(t, err)
	hd, ok := line.Header()
	require.True(t, ok)
	require.NoError(t, alice.routeDirect(hd, line, true))

	bobLine, err := bobR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, bobLine, "DMSG AAAA BBBB hi")

	aliceLine, err := aliceR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, aliceLine, "DMSG AAAA BBBB hi")
}

func TestRouteBroadcastExcludesSender(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")
	_, bobR := newCommittedSession(t, h, adc.Uint32ToSID(2), "BBBBBBBBBBBBA", "bob")

	line, err := adc.DecodeLine("BMSG AAAA hi")
	require.NoError(t, err)
	hd, ok := line.Header()
	require.True(t, ok)
	require.NoError(t, alice.routeBroadcast(hd, line, false))

	bobLine, err := bobR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, bobLine, "BMSG AAAA hi")

	// alice is the sender: per spec.md §8 scenario 3, her own socket does
	// not receive the echo, so a blocking read here must time out rather
	// than return the message she sent.
	done := make(chan struct{})
	go func() {
		aliceR.ReadString('\n')
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("sender received its own BMSG broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouteDirectMissingTargetReportsStatus(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")

	line, err := adc.DecodeLine("EMSG AAAA ZZZZ hi")
	require.NoError(t, err)
	hd, ok := line.Header()
	require.True(t, ok)
	require.NoError(t, alice.routeDirect(hd, line, false))

	status, err := aliceR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, status, "ISTA")
}

func TestRouteFeatureBroadcastRejectsBadSelector(t *testing.T) {
	h := newTestHub()
	alice, _ := newCommittedSession(t, h, adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")

	line, err := adc.DecodeLine("FSCH AAAA")
	require.NoError(t, err)
	hd, ok := line.Header()
	require.True(t, ok)
	err = alice.routeFeatureBroadcast(line)
	require.Error(t, err)
	_ = hd
}

func TestHandleInfoUpdateRejectsRedundantUpdate(t *testing.T) {
	h := newTestHub()
	alice, _ := newCommittedSession(t, h, adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")

	line, err := adc.DecodeLine("BINF AAAA NIalice")
	require.NoError(t, err)
	err = alice.handleInfoUpdate(line)
	require.Error(t, err)
}

func TestHandleBotCommandDispatchesRegisteredCommand(t *testing.T) {
	h := newTestHub()
	alice, _ := newCommittedSession(t, h, adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")

	called := false
	h.Plugins.RegisterCommand(Command{
		Name: "ping",
		Fn:   func(ctx *Context, args []string) { called = true },
	})

	line, err := adc.DecodeLine("DMSG AAAA " + adc.SIDString(h.BotSID()) + " !ping")
	require.NoError(t, err)
	alice.handleBotCommand(line)
	require.True(t, called)
}

func TestHandleLineRejectsClientAndUDPOnlyTypes(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, adc.Uint32ToSID(1), "AAAAAAAAAAAAA", "alice")

	line, err := adc.DecodeLine("CSTA 000 hi")
	require.NoError(t, err)
	err = alice.handleLine(line)
	require.Error(t, err)
	_ = aliceR
}

func TestHandleDisconnectCommandDeniesNonOperator(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, mustSID(t, "AAAA"), "AAAAAAAAAAAAA", "alice")
	_, bobR := newCommittedSession(t, h, mustSID(t, "BBBB"), "BBBBBBBBBBBBA", "bob")

	line, err := adc.DecodeLine("HDSC AAAA BBBB DI DI bye")
	require.NoError(t, err)
	require.NoError(t, alice.handleDisconnectCommand(line))

	status, err := aliceR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, status, "ISTA 100")

	require.Equal(t, 2, h.Roster.Count())
	_ = bobR
}

func TestHandleDisconnectCommandReportsMissingVictim(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, mustSID(t, "AAAA"), "AAAAAAAAAAAAA", "alice")
	alice.op = true

	line, err := adc.DecodeLine("HDSC AAAA ZZZZ DI DI bye")
	require.NoError(t, err)
	require.NoError(t, alice.handleDisconnectCommand(line))

	status, err := aliceR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, status, "ISTA 100")
}

func TestHandleDisconnectCommandKicksVisiblyWithReason(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, mustSID(t, "AAAA"), "AAAAAAAAAAAAA", "alice")
	alice.op = true
	bob, bobR := newCommittedSession(t, h, mustSID(t, "BBBB"), "BBBBBBBBBBBBA", "bob")

	line, err := adc.DecodeLine("HDSC AAAA BBBB KK KK spamming")
	require.NoError(t, err)
	require.NoError(t, alice.handleDisconnectCommand(line))

	// visible kick: everyone, including the kicker, sees the reason-coded
	// IQUI naming the kicker's SID and the message.
	aliceLine, err := aliceR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, aliceLine, "IQUI BBBB KK AAAA")
	require.Contains(t, aliceLine, `spamming`)

	bobLine, err := bobR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, bobLine, "IQUI BBBB KK AAAA")

	require.True(t, bob.quitSilent)
}

func TestHandleDisconnectCommandSilentModeHidesReasonFromOthers(t *testing.T) {
	h := newTestHub()
	alice, aliceR := newCommittedSession(t, h, mustSID(t, "AAAA"), "AAAAAAAAAAAAA", "alice")
	alice.op = true
	_, bobR := newCommittedSession(t, h, mustSID(t, "BBBB"), "BBBBBBBBBBBBA", "bob")
	_, carolR := newCommittedSession(t, h, mustSID(t, "CCCC"), "CCCCCCCCCCCCA", "carol")

	line, err := adc.DecodeLine("HDSC AAAA CCCC DI ND quietly")
	require.NoError(t, err)
	require.NoError(t, alice.handleDisconnectCommand(line))

	// the victim alone is told why.
	carolLine, err := carolR.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, carolLine, "IQUI CCCC DI AAAA")
	require.Contains(t, carolLine, "quietly")

	// everyone else just sees a bare departure.
	bobLine, err := bobR.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "IQUI CCCC ND\n", bobLine)
}

func TestIdleTimeoutDefaultsWhenUnconfigured(t *testing.T) {
	h := NewHub(Config{Name: "bare"})
	require.Equal(t, 6*time.Minute, h.IdleTimeout())

	h.SetConfigInt(ConfigIdleTimeoutSeconds, 30)
	require.Equal(t, 30*time.Second, h.IdleTimeout())
}

func TestSessionReadLineRespectsDeadline(t *testing.T) {
	h := newTestHub()
	server, cli := net.Pipe()
	s := newSession(h, server)
	t.Cleanup(func() { cli.Close() })

	_, err := s.conn.ReadLine(time.Now().Add(10 * time.Millisecond))
	require.Error(t, err)
}
