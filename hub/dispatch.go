package hub

import (
	"context"
	"strconv"
	"strings"

	"github.com/dcpp-hub/adchub/adc"
)

// handleLine routes one post-login message according to its type letter,
// grounded on the big switch in original_source/ADCClient.cpp's onLine
// (the NORMAL-state branch) and on spec.md §4.3's per-type routing
// table. Client/server-only type letters ('C', 'U') are rejected here;
// everything else is either acted on directly (BINF, chat commands) or
// simply forwarded according to its type letter.
func (s *Session) handleLine(line adc.Line) error {
	h, ok := line.Header()
	if !ok {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "malformed token"}
	}

	ctx := &Context{Event: EventClientLine, Hub: s.hub, Peer: s, Line: line.Raw}
	s.hub.Plugins.Dispatch(ctx)
	if ctx.Is(Disconnect) {
		return &adc.AuthError{Code: adc.CodeProtoError, Msg: "disconnected by plugin", Disconnect: true}
	}
	if ctx.Is(Handle) {
		return nil
	}

	switch h.Type {
	case 'C', 'U':
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "client/UDP-only type not valid to a hub"}
	case 'B':
		return s.routeBroadcast(h, line, false)
	case 'A', 'P':
		return s.routeBroadcast(h, line, false)
	case 'D', 'E':
		return s.routeDirect(h, line, h.Type == 'D')
	case 'F':
		return s.routeFeatureBroadcast(line)
	case 'H':
		return s.routeHub(h, line)
	case 'I':
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "I-type is hub-origin only"}
	default:
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "unknown message type"}
	}
}

// routeBroadcast handles B (every peer) and A/P (only the UDP-active, or
// only the UDP-passive, peers, judged by their U4/U6 fields); the sender
// itself is included only when echo is true, and handleLine passes false.
// INF updates are intercepted to refresh the roster record instead of
// blindly forwarded, grounded on ADCClient::handleInfo's redundancy check
// and ClientManager::broadcast.
func (s *Session) routeBroadcast(h adc.Header, line adc.Line, echo bool) error {
	if h.Cmd == "INF" && len(line.Tokens) >= 2 {
		return s.handleInfoUpdate(line)
	}
	if h.Cmd == "MSG" {
		s.hub.dispatchEvent(EventUserMessage, s, line.Raw)
	}
	buf := adc.NewBuffer(line.Raw + "\n")
	if h.Type == 'A' || h.Type == 'P' {
		wantActive := h.Type == 'A'
		for _, p := range s.hub.Roster.All() {
			if (p.SID() != s.sid || echo) && p.Info().IsUDPActive() == wantActive {
				p.Send(buf)
			}
		}
		return nil
	}
	s.hub.Roster.Broadcast(buf, s.sid, echo)
	return nil
}

// handleInfoUpdate applies an in-session BINF to the session's own
// UserInfo and re-broadcasts it, rejecting a no-op update the way
// ADCClient::handleInfo rejects a BINF that changes nothing.
func (s *Session) handleInfoUpdate(line adc.Line) error {
	update := ParseUserInfo(line.Tokens[2:])
	if s.info.redundantWith(update) {
		return &adc.ProtocolError{Code: adc.CodeWarning, Msg: "redundant INF"}
	}
	oldNick := s.info.Nick()
	s.info.Merge(update)
	if s.info.Nick() != oldNick {
		s.hub.Roster.UpdateIndexes(s, oldNick)
	}
	if s.info.IsUDPActive() != s.udpActive {
		s.udpActive = s.info.IsUDPActive()
	}
	buf := adc.NewBuffer(s.info.InfLine(s.sid))
	s.hub.Roster.Broadcast(buf, s.sid, false)
	s.hub.dispatchEvent(EventClientInfo, s, line.Raw)
	return nil
}

// routeDirect handles D (direct, echoed back to sender) and E (direct, no
// echo), including the hub-bot UserCommand special case from
// ADCClient::handleMessage where the target SID is the hub's own bot.
func (s *Session) routeDirect(h adc.Header, line adc.Line, echo bool) error {
	if len(line.Tokens) < 3 {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "missing target SID"}
	}
	target, err := adc.ParseSID(line.Tokens[2])
	if err != nil {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "bad target SID"}
	}

	if h.Cmd == "MSG" && target == s.hub.BotSID() {
		s.handleBotCommand(line)
		return nil
	}
	if h.Cmd == "MSG" {
		s.hub.dispatchEvent(EventUserPrivateMessage, s, line.Raw)
	}

	buf := adc.NewBuffer(line.Raw + "\n")
	if !s.hub.Roster.Direct(buf, target) {
		s.conn.Enqueue(adc.Line1((&adc.ProtocolError{Code: adc.CodeProtoError, Msg: "target not found"}).StatusTokens()...))
		return nil
	}
	if echo {
		s.conn.Enqueue(buf)
	}
	return nil
}

// handleBotCommand parses a chat command addressed to the hub's own bot
// SID, e.g. "!myip", and dispatches it through the plugin manager's
// Command table, grounded on hub.RegisterCommand consumers such as
// hub/plugins/myip/myip.go.
func (s *Session) handleBotCommand(line adc.Line) {
	if len(line.Tokens) < 4 {
		return
	}
	text := line.Tokens[3]
	text = strings.TrimPrefix(text, "!")
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}
	cmd, ok := s.hub.Plugins.Command(parts[0])
	if !ok {
		return
	}
	ctx := &Context{Event: EventUserCommand, Hub: s.hub, Peer: s}
	cmd.Fn(ctx, parts[1:])
}

// routeFeatureBroadcast handles F-type messages: a broadcast filtered by
// the feature selector clauses that follow the sender's SID, grounded on
// ClientManager::broadcastFeature.
func (s *Session) routeFeatureBroadcast(line adc.Line) error {
	if len(line.Tokens) < 3 {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "missing feature selector"}
	}
	// the selector is the run of (+|-)XXXX tokens after the SID; whatever
	// follows it is the message body.
	sel := line.Tokens[2:]
	n := 0
	for n < len(sel) && sel[n] != "" && (sel[n][0] == '+' || sel[n][0] == '-') {
		n++
	}
	clauses, err := adc.ParseFeatureSelector(sel[:n])
	if err != nil || n == 0 {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "bad feature selector"}
	}
	buf := adc.NewBuffer(line.Raw + "\n")
	s.hub.Roster.BroadcastFeature(buf, s.sid, true, clauses)
	return nil
}

// routeHub handles H-type messages: addressed to the hub itself rather
// than relayed to any peer (e.g. a client pinging the hub bot directly).
func (s *Session) routeHub(h adc.Header, line adc.Line) error {
	switch h.Cmd {
	case "PAS", "SUP":
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "handshake command sent after login"}
	case "DSC":
		return s.handleDisconnectCommand(line)
	default:
		s.conn.Enqueue(adc.Line1((&adc.ProtocolError{Code: adc.CodeWarning, Msg: "unrecognized hub command"}).StatusTokens()...))
		return nil
	}
}

// defaultKickBanSeconds is how long a bare HDSC KK (kick, no explicit
// duration) keeps the victim's CID from rejoining, per spec.md §4.5's
// "KK, BN additionally record a ban" — KK gets a short cooldown rather
// than BN's caller-supplied duration.
const defaultKickBanSeconds = 5 * 60

// handleDisconnectCommand implements HDSC (spec.md §4.5): an
// operator-only disconnect/kick/ban/redirect, addressed as
// "HDSC <opSid> <victimSid> <mode> <visibility> <payload...>" where mode
// is DI/KK/BN/RD and visibility is either the same value (announced to
// everyone) or ND (the victim alone is told why; everyone else just sees
// a bare departure). KK and BN additionally persist a ban to Store; RD
// carries a redirect address instead.
func (s *Session) handleDisconnectCommand(line adc.Line) error {
	if !s.op {
		s.conn.Enqueue(adc.Line1((&adc.ProtocolError{Code: adc.CodeWarning, Msg: "access denied"}).StatusTokens()...))
		return nil
	}
	if len(line.Tokens) < 5 {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "malformed HDSC"}
	}
	victimSID, err := adc.ParseSID(line.Tokens[2])
	if err != nil {
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "bad victim SID"}
	}
	mode := line.Tokens[3]
	visibility := line.Tokens[4]
	payload := line.Tokens[5:]

	victim, ok := s.hub.Roster.BySID(victimSID)
	if !ok {
		s.conn.Enqueue(adc.Line1((&adc.ProtocolError{Code: adc.CodeWarning, Msg: "no such user"}).StatusTokens()...))
		return nil
	}

	var msg, addr string
	banSeconds := int64(defaultKickBanSeconds)
	switch mode {
	case "DI":
		if len(payload) > 0 {
			msg = payload[0]
		}
	case "KK":
		if len(payload) > 0 {
			msg = payload[0]
		}
	case "BN":
		if len(payload) > 0 {
			if secs, err := strconv.ParseInt(payload[0], 10, 64); err == nil {
				banSeconds = secs
			}
		}
		if len(payload) > 1 {
			msg = payload[1]
		}
	case "RD":
		if len(payload) > 0 {
			addr = payload[0]
		}
		if len(payload) > 1 {
			msg = payload[1]
		}
	default:
		return &adc.ProtocolError{Code: adc.CodeProtoError, Msg: "unknown HDSC mode"}
	}

	tokens := []string{"IQUI", adc.SIDString(victimSID), mode, adc.SIDString(s.sid)}
	switch mode {
	case "BN":
		tokens = append(tokens, strconv.FormatInt(banSeconds, 10))
	case "RD":
		tokens = append(tokens, addr)
	}
	tokens = append(tokens, msg)
	announce := adc.Line1(tokens...)

	silent := visibility == "ND"
	if silent {
		s.hub.Roster.Direct(announce, victimSID)
		ndBuf := adc.Line1("IQUI", adc.SIDString(victimSID), "ND")
		s.hub.Roster.Broadcast(ndBuf, victimSID, false)
	} else {
		s.hub.Roster.Broadcast(announce, victimSID, true)
	}

	if s.hub.Store != nil && (mode == "KK" || mode == "BN") {
		s.hub.Store.PutBan(context.Background(), Ban{
			Target:    string(victim.CID()),
			Kind:      "cid",
			Reason:    msg,
			By:        s.Nick(),
			ExpiresAt: banExpiry(banSeconds),
		})
	}

	if vs, ok := victim.(*Session); ok {
		vs.quitSilent = true
	}
	s.hub.Disconnect(victim, "", true)
	return nil
}

// banExpiry turns a duration in seconds into an absolute unix timestamp;
// zero or negative means permanent (Store.Ban never expires a 0).
func banExpiry(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return nowUnix() + seconds
}
