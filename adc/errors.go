package adc

import (
	"errors"
	"fmt"
)

// Parse-level errors. A parse error is always fatal to the connection and
// is never reported to the peer (spec.md §7, class 1): the peer is simply
// dropped so that a bare port scanner cannot learn anything about the
// protocol spoken here.
var (
	ErrLineTooLong = errors.New("adc: line exceeds 1024 bytes without a newline")
	ErrBadEscape   = errors.New("adc: invalid escape sequence")
	ErrBadToken    = errors.New("adc: malformed command token")
)

// Severity mirrors the ADC STA severity codes used in ISTA/BSTA messages.
type Severity int

const (
	Success Severity = 0
	Recoverable Severity = 1
	Fatal Severity = 2
)

// Status codes used by the hub core (spec.md §6). CodeCIDTaken is
// deliberately two digits, distinct in width from the others.
const (
	CodeWarning     = 100
	CodeProtoError  = 200
	CodeBadPassword = 223
	CodeCIDTaken    = 24
)

// ProtocolError corresponds to spec.md §7 class 2: the hub sends an ISTA
// with the given code and message, then disconnects the peer.
type ProtocolError struct {
	Code int
	Msg  string
}

func (e *ProtocolError) Error() string { return e.Msg }

// StatusTokens renders the "ISTA <code> <msg>" line the hub sends before
// disconnecting a peer on a class-2 error (spec.md §7).
func (e *ProtocolError) StatusTokens() []string {
	return []string{"ISTA", fmt.Sprintf("%d", e.Code), e.Msg}
}

// AuthError corresponds to spec.md §7 class 3. Disconnect reports whether
// the peer should be dropped after the status is sent (true for bad
// password / CID collision, false for a warning such as "access denied").
type AuthError struct {
	Code       int
	Msg        string
	Disconnect bool
}

func (e *AuthError) Error() string { return e.Msg }

// StatusTokens renders the "ISTA <code> <msg>" line for a class-3 error.
func (e *AuthError) StatusTokens() []string {
	return []string{"ISTA", fmt.Sprintf("%d", e.Code), e.Msg}
}
