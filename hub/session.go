package hub

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/dcpp-hub/adchub/adc"
)

// State is one stage of the client session state machine from spec.md
// §4.2, grounded on the stage progression in
// original_source/ADCClient.cpp (STATE_PROTOCOL/STATE_IDENTIFY/
// STATE_VERIFY/STATE_NORMAL) and on the Go goroutine-per-connection idiom
// in other_examples' hub_adc.go (adcStageProtocol/adcStageIdentity).
type State int

const (
	StateProtocol State = iota
	StateIdentify
	StateVerify
	StateNormal
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateProtocol:
		return "protocol"
	case StateIdentify:
		return "identify"
	case StateVerify:
		return "verify"
	case StateNormal:
		return "normal"
	default:
		return "disconnected"
	}
}

const handshakeTimeout = 30 * time.Second

// Session is one client's connection to this hub: its socket, its
// progress through the login state machine, and once logged in, its
// roster-visible identity. One goroutine per Session reads its socket in
// a loop (Serve); all mutation of shared hub state goes through the
// Roster's own locking, so Session itself needs no mutex for the fields
// only its own goroutine touches.
type Session struct {
	hub   *Hub
	conn  *adc.Conn
	state State

	sid  adc.SID
	info *UserInfo

	salt []byte // issued in IGPA, consumed by HPAS

	udpActive  bool
	op         bool
	quitSilent bool // set by an operator HDSC that already sent its own IQUI
}

// newSession allocates a Session in StateProtocol for a freshly accepted
// connection.
func newSession(h *Hub, nc net.Conn) *Session {
	return &Session{
		hub:   h,
		conn:  adc.NewConn(nc),
		state: StateProtocol,
		info:  NewUserInfo(),
	}
}

func (s *Session) SID() adc.SID         { return s.sid }
func (s *Session) CID() adc.CID         { return s.info.CID() }
func (s *Session) Nick() string         { return s.info.Nick() }
func (s *Session) Info() *UserInfo      { return s.info }
func (s *Session) Features() adc.FeatureSet { return s.info.Features() }
func (s *Session) Local() bool          { return true }

// Send enqueues buf on the session's socket (the Peer interface method
// the Roster's broadcast/direct routing calls).
func (s *Session) Send(buf *adc.Buffer) { s.conn.Enqueue(buf) }

// RemoteAddr exposes the underlying socket's peer address, used by
// plugins such as hub/plugins/myip that need to report it back to a
// user.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Serve runs the session to completion: handshake, then the normal-state
// read loop, then teardown. It returns once the connection is closed.
// Grounded on ADCSocket::handleOnRead's read-dispatch-loop shape, redone
// per-goroutine instead of per-reactor-tick.
func (s *Session) Serve() {
	defer s.teardown()

	if err := s.runHandshake(); err != nil {
		s.hub.Metrics.LoginFailures.Inc()
		if adcErr := (*adc.ProtocolError)(nil); errors.As(err, &adcErr) {
			s.conn.WriteNow(adcErr.StatusTokens()...)
		}
		var authErr *adc.AuthError
		if errors.As(err, &authErr) {
			s.conn.WriteNow(authErr.StatusTokens()...)
		}
		return
	}

	for {
		line, err := s.conn.ReadLine(time.Now().Add(s.hub.IdleTimeout()))
		if err != nil {
			return
		}
		if line.Empty() {
			continue // keep-alive
		}
		if err := s.handleLine(line); err != nil {
			s.reportAndMaybeDisconnect(err)
			if isFatal(err) {
				return
			}
		}
	}
}

// isFatal reports whether an error from handleLine should end the
// session, mirroring the PROTOCOL_ERROR/class-2-and-3 distinction from
// ADCClient::onLine: parse-level and protocol errors always disconnect;
// most class-3 AuthErrors do too, except a plain "access denied" that
// leaves the connection open to retry.
func isFatal(err error) bool {
	var ae *adc.AuthError
	if errors.As(err, &ae) {
		return ae.Disconnect
	}
	return true
}

func (s *Session) reportAndMaybeDisconnect(err error) {
	var pe *adc.ProtocolError
	if errors.As(err, &pe) {
		s.conn.WriteNow(pe.StatusTokens()...)
		return
	}
	var ae *adc.AuthError
	if errors.As(err, &ae) {
		s.conn.WriteNow(ae.StatusTokens()...)
		return
	}
	if adc.Debug {
		log.Printf("session %s: %v", s.conn.RemoteAddr(), err)
	}
}

// runHandshake drives PROTOCOL -> IDENTIFY -> (VERIFY) -> NORMAL,
// grounded on ADCClient::handleSupports/handleLogin/handlePassword.
func (s *Session) runHandshake() error {
	deadline := time.Now().Add(handshakeTimeout)

	line, err := s.conn.ReadLine(deadline)
	if err != nil {
		return err
	}
	if err := s.handleSupports(line); err != nil {
		return err
	}
	s.state = StateIdentify

	line, err = s.conn.ReadLine(deadline)
	if err != nil {
		return err
	}
	if err := s.handleLogin(line); err != nil {
		return err
	}

	if s.state == StateVerify {
		line, err = s.conn.ReadLine(deadline)
		if err != nil {
			return err
		}
		if err := s.handlePassword(line); err != nil {
			return err
		}
	}

	s.state = StateNormal
	s.login()
	return nil
}

// handleSupports processes the client's opening HSUP, replies with
// ISUP+ISID+IINF, grounded on ADCClient::handleSupports.
func (s *Session) handleSupports(line adc.Line) error {
	h, ok := line.Header()
	if !ok || h.Type != 'H' || h.Cmd != "SUP" {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "expected HSUP"}
	}
	fs := adc.ParseSupportTokens(line.Tokens[1:])
	if !fs.Has("BASE") {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "BASE feature required"}
	}
	s.info.Set("SU", joinFeatures(fs))

	sid, err := s.hub.Servers.NextSID()
	if err != nil {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "session allocation failed"}
	}
	s.sid = sid

	ours := s.hub.SupportedFeatures()
	if err := s.conn.WriteNow(append([]string{"ISUP"}, ours.SupportTokens()...)...); err != nil {
		return err
	}
	if err := s.conn.WriteNow("ISID", adc.SIDString(sid)); err != nil {
		return err
	}
	return s.conn.WriteNow(s.hub.HubInfoTokens()...)
}

func joinFeatures(fs adc.FeatureSet) string {
	out := ""
	for _, t := range fs.SupportTokens() {
		if len(t) != 5 || t[0] != '+' {
			continue
		}
		if out != "" {
			out += ","
		}
		out += t[1:]
	}
	return out
}

// handleLogin processes BINF, checks CID/nick availability, and either
// moves straight to NORMAL (no password set) or to VERIFY (IGPA issued).
// Grounded on ADCClient::handleLogin; a CID already in the live Roster is
// rejected outright, and the incumbent is not pinged (no INTD is sent).
func (s *Session) handleLogin(line adc.Line) error {
	h, ok := line.Header()
	if !ok || h.Type != 'B' || h.Cmd != "INF" {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "expected BINF"}
	}
	u := ParseUserInfo(line.Tokens[2:])
	if !u.Valid() {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "missing NI or I4/I6"}
	}
	cid := u.CID()
	if !cid.Valid() {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "invalid CID"}
	}
	if s.hub.Store != nil {
		if ban, _ := s.hub.Store.Ban(context.Background(), "cid", string(cid), nowUnix()); ban != nil {
			return &adc.AuthError{Code: adc.CodeBadPassword, Msg: "banned: " + ban.Reason, Disconnect: true}
		}
	}
	if !s.hub.Roster.Reserve(s.sid, cid, u.Nick()) {
		return &adc.AuthError{Code: adc.CodeCIDTaken, Msg: "CID or nickname already in use", Disconnect: true}
	}
	s.info.Merge(u)

	pass := s.hub.RegisteredPassword(u.Nick())
	if pass == "" {
		return nil
	}
	salt, err := adc.RandomSalt()
	if err != nil {
		s.hub.Roster.CancelReserve(s.sid)
		return err
	}
	s.salt = salt
	s.state = StateVerify
	return s.conn.WriteNow("IGPA", adc.EncodeSalt(salt))
}

// handlePassword verifies HPAS against the salt issued in handleLogin,
// grounded on ADCClient::handlePassword.
func (s *Session) handlePassword(line adc.Line) error {
	h, ok := line.Header()
	if !ok || h.Type != 'H' || h.Cmd != "PAS" || len(line.Tokens) < 2 {
		s.hub.Roster.CancelReserve(s.sid)
		return &adc.AuthError{Code: adc.CodeBadPassword, Msg: "expected HPAS", Disconnect: true}
	}
	want := s.hub.RegisteredPassword(s.info.Nick())
	got, err := adc.PasswordHash(s.info.CID(), want, s.salt)
	if err != nil || got != line.Tokens[1] {
		s.hub.Roster.CancelReserve(s.sid)
		return &adc.AuthError{Code: adc.CodeBadPassword, Msg: "bad password", Disconnect: true}
	}
	if s.hub.Store != nil {
		if acc, _ := s.hub.Store.Account(context.Background(), s.info.Nick()); acc != nil && acc.Level >= 1 {
			s.op = true
			s.info.Set("OP", "1")
		}
	}
	if s.hub.Roster.HasCID(s.info.CID()) {
		s.hub.Roster.CancelReserve(s.sid)
		return &adc.AuthError{Code: adc.CodeCIDTaken, Msg: "CID taken during verify", Disconnect: true}
	}
	return nil
}

// login commits the session to the roster and broadcasts its BINF,
// grounded on ADCClient::login.
func (s *Session) login() {
	s.udpActive = s.info.IsUDPActive()
	s.hub.Roster.Commit(s)
	s.hub.Metrics.LoginsTotal.Inc()
	s.hub.Metrics.SessionsActive.Inc()
	buf := adc.NewBuffer(s.info.InfLine(s.sid))
	s.hub.Roster.Broadcast(buf, s.sid, false)
	s.hub.dispatchEvent(EventUserConnected, s, "")
}

// logout removes the session from the roster and broadcasts a quit,
// grounded on ADCClient::logout / doDisconnectBy's IQUI construction.
func (s *Session) logout() {
	if s.state != StateNormal {
		return
	}
	s.hub.Roster.Remove(s)
	s.hub.Metrics.SessionsActive.Dec()
	if !s.quitSilent {
		buf := adc.Line1("IQUI", adc.SIDString(s.sid))
		s.hub.Roster.Broadcast(buf, s.sid, false)
	}
	s.hub.dispatchEvent(EventUserDisconnected, s, "")
}

func (s *Session) teardown() {
	s.state = StateDisconnected
	s.conn.Close()
	s.logout()
}

func nowUnix() int64 { return timeNowFunc().Unix() }

var timeNowFunc = time.Now
