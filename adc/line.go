package adc

import "strings"

// MaxLineSize is the hard cap on a single ADC line (spec.md §4.1). A peer
// that sends more than this many bytes without a terminating newline is
// dropped silently.
const MaxLineSize = 1024

// Line is the decoded form of one ADC wire line: the token list plus the
// original unparsed bytes, which is needed verbatim for forwarding
// directed and broadcast traffic without re-encoding it.
type Line struct {
	Tokens []string
	Raw    string
}

// Empty reports whether the line was a bare keep-alive (an empty line,
// which carries no tokens and must be silently ignored).
func (l Line) Empty() bool { return len(l.Tokens) == 0 }

// Header is the first token of a non-empty line: exactly four characters,
// a one-character type plus a three-character command name.
type Header struct {
	Type byte
	Cmd  string
}

// Header parses the line's first token into a type letter and command
// name. It returns ok=false if the first token isn't exactly four bytes.
func (l Line) Header() (Header, bool) {
	if len(l.Tokens) == 0 || len(l.Tokens[0]) != 4 {
		return Header{}, false
	}
	return Header{Type: l.Tokens[0][0], Cmd: l.Tokens[0][1:]}, true
}

// DecodeLine parses one already-newline-stripped ADC line. An empty
// string decodes to an empty Line (a keep-alive).
func DecodeLine(raw string) (Line, error) {
	if raw == "" {
		return Line{Raw: raw}, nil
	}
	parts := strings.Split(raw, " ")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tok, err := Unescape(p)
		if err != nil {
			return Line{}, err
		}
		tokens[i] = tok
	}
	return Line{Tokens: tokens, Raw: raw}, nil
}

// EncodeLine renders a token list back into wire form (without the
// trailing newline). Encode(Decode(raw)) == raw for any raw that decoded
// successfully and isn't a keep-alive.
func EncodeLine(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = Escape(t)
	}
	return strings.Join(parts, " ")
}
