package hub

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcpp-hub/adchub/adc"
)

func newTestHub() *Hub {
	return NewHub(Config{
		Name:        "test",
		Desc:        "test hub",
		IdleTimeout: time.Minute,
	})
}

// runSession starts a Session.Serve on one end of an in-memory pipe and
// hands the test a bufio-wrapped client end to drive the handshake.
func runSession(t *testing.T, h *Hub) (client *bufio.ReadWriter, done chan struct{}) {
	server, cli := net.Pipe()
	s := newSession(h, server)
	done = make(chan struct{})
	go func() {
		s.Serve()
		close(done)
	}()
	client = bufio.NewReadWriter(bufio.NewReader(cli), bufio.NewWriter(cli))
	t.Cleanup(func() { cli.Close() })
	return client, done
}

func sendLine(t *testing.T, rw *bufio.ReadWriter, tokens ...string) {
	_, err := rw.WriteString(adc.EncodeLine(tokens) + "\n")
	require.NoError(t, err)
	require.NoError(t, rw.Flush())
}

func readLine(t *testing.T, rw *bufio.ReadWriter) string {
	line, err := rw.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func TestSessionHandshakeSucceedsWithoutPassword(t *testing.T) {
	h := newTestHub()
	client, done := runSession(t, h)

	sendLine(t, client, "HSUP", "+BASE")
	supLine := readLine(t, client)
	require.Regexp(t, `^ISUP( [+-][A-Z0-9]{4})+$`, supLine)
	require.Contains(t, supLine, "+BASE")
	sidLine := readLine(t, client)
	require.Regexp(t, `^ISID [A-Z2-7]{4}$`, sidLine)
	require.Regexp(t, `^IINF `, readLine(t, client))

	sendLine(t, client, "BINF", "AAAA", "NIAlice", "I41.2.3.4", "IDAAAAAAAAAAAAA")
	// the lone peer in the roster does not receive its own BINF echo
	// (spec.md §8 scenario 1: broadcast to all *other* peers), so wait
	// for the commit instead of blocking on a read that never arrives.
	require.Eventually(t, func() bool { return h.Roster.Count() == 1 }, time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("session exited unexpectedly")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionHandshakeRejectsMissingBase(t *testing.T) {
	h := newTestHub()
	client, done := runSession(t, h)

	sendLine(t, client, "HSUP", "+TIGR")
	status := readLine(t, client)
	require.Regexp(t, `^ISTA 2\d\d `, status)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not disconnect after protocol error")
	}
}

func TestSessionHandshakeRejectsDuplicateCID(t *testing.T) {
	h := newTestHub()

	first, _ := runSession(t, h)
	sendLine(t, first, "HSUP", "+BASE")
	readLine(t, first)
	readLine(t, first)
	readLine(t, first)
	sendLine(t, first, "BINF", "AAAA", "NIAlice", "I41.2.3.4", "IDAAAAAAAAAAAAA")
	// no echo back to first: it's the only peer in the roster so far.
	require.Eventually(t, func() bool { return h.Roster.Count() == 1 }, time.Second, time.Millisecond)

	second, done := runSession(t, h)
	sendLine(t, second, "HSUP", "+BASE")
	readLine(t, second)
	readLine(t, second)
	readLine(t, second)
	sendLine(t, second, "BINF", "BBBB", "NIBob", "I45.6.7.8", "IDAAAAAAAAAAAAA")
	status := readLine(t, second)
	require.Equal(t, `ISTA 24 CID\sor\snickname\salready\sin\suse`, status)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("duplicate-identity session did not disconnect")
	}
	require.Equal(t, 1, h.Roster.Count())
}
