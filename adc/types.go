// Package adc implements the wire syntax of the ADC protocol: line framing,
// escaping, session and client identifiers, and the message types exchanged
// between a hub and its peers.
package adc

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strings"

	godctypes "github.com/direct-connect/go-dc/adc/types"
)

// base32Alphabet is the RFC 4648 alphabet ADC uses for CIDs.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// cidLastChars restricts the final character of a CID to those whose
// low bit is zero.
const cidLastChars = "ACEGIKMOQSUWY246"

var b32index [256]int8

func init() {
	for i := range b32index {
		b32index[i] = -1
	}
	for i, c := range base32Alphabet {
		b32index[byte(c)] = int8(i)
	}
}

// SID is the 32-bit session identifier the hub hands out on accept,
// rendered on the wire as four base32 characters. Reused directly from
// go-dc's own wire types rather than a hand-rolled codec for the same
// four-byte value, matching how _examples/RoLex-go-dcpp/adc/types.go
// aliases SID from the identical package (also already imported here for
// Tiger hashing in tiger.go and TLS keyprints in cmd/adchubd/cmd/certs.go).
type SID = godctypes.SID

// ZeroSID is reserved to mean "no SID".
var ZeroSID SID

// ParseSID decodes a four-character base32 SID token into the raw 4-byte
// value go-dc's SID wraps; go-dc's own marshaling targets full ADC wire
// lines rather than a bare token, so the byte-level conversion stays ours.
func ParseSID(s string) (SID, error) {
	if len(s) != 4 {
		return SID{}, errors.New("adc: invalid sid length")
	}
	var v uint32
	for i := 0; i < 4; i++ {
		idx := b32index[s[i]]
		if idx < 0 {
			return SID{}, errors.New("adc: invalid sid character")
		}
		v = v<<5 | uint32(idx)
	}
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], v)
	return SID(raw), nil
}

// sidToUint32 and uint32ToSID cross between go-dc's 4-byte SID and the
// plain integer shard-mask arithmetic in hub/servermanager.go.
func sidToUint32(sid SID) uint32 {
	raw := [4]byte(sid)
	return binary.BigEndian.Uint32(raw[:])
}

func uint32ToSID(v uint32) SID {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], v)
	return SID(raw)
}

// SIDToUint32 exposes sidToUint32 for hub/servermanager.go's shard-mask
// arithmetic, which predates go-dc's SID and still works in plain
// integers.
func SIDToUint32(sid SID) uint32 { return sidToUint32(sid) }

// Uint32ToSID is the inverse of SIDToUint32.
func Uint32ToSID(v uint32) SID { return uint32ToSID(v) }

// SIDString renders a SID as the four base32 characters that appear on
// the wire (ISID, BINF, IQUI, ...). go-dc's own String method (if any)
// targets its structured message encoder rather than a bare token, so
// every wire-facing call site in this package renders through this
// function instead, keeping encode and ParseSID as exact inverses.
func SIDString(sid SID) string {
	v := sidToUint32(sid)
	var out [4]byte
	for i := 3; i >= 0; i-- {
		out[i] = base32Alphabet[v&0x1f]
		v >>= 5
	}
	return string(out[:])
}

// CID is a 13-character base32 client identifier, globally unique
// across a federation.
type CID string

// IsZero reports whether the CID is empty.
func (c CID) IsZero() bool { return c == "" }

// String returns the CID's wire form.
func (c CID) String() string { return string(c) }

// Valid reports whether c is syntactically well formed: 13 base32
// characters, with the final character's low bit clear.
func (c CID) Valid() bool {
	if len(c) != 13 {
		return false
	}
	for i := 0; i < 12; i++ {
		if b32index[c[i]] < 0 {
			return false
		}
	}
	return strings.IndexByte(cidLastChars, c[12]) >= 0
}

// RandomCID mints a fresh random CID, used for synthetic identities such
// as the hub's own bot that have no real client behind them.
func RandomCID() (CID, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	s := base32Encode(raw)
	last := s[len(s)-1]
	if strings.IndexByte(cidLastChars, last) < 0 {
		idx := strings.IndexByte(base32Alphabet, last)
		last = base32Alphabet[idx&^1]
	}
	return CID(s[:len(s)-1] + string(last)), nil
}

// RandomSalt returns a fresh 192-bit (24 byte) random salt, used for the
// HPAS/IGPA password challenge.
func RandomSalt() ([]byte, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// base32Encode renders raw bytes (e.g. a salt or a hash) using the ADC
// base32 alphabet, unpadded.
func base32Encode(data []byte) string {
	var sb strings.Builder
	var buf uint64
	var bits uint
	for _, b := range data {
		buf = buf<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(buf>>bits)&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buf<<(5-bits))&0x1f])
	}
	return sb.String()
}

// base32Decode is the inverse of base32Encode.
func base32Decode(s string) ([]byte, error) {
	var out []byte
	var buf uint64
	var bits uint
	for i := 0; i < len(s); i++ {
		idx := b32index[s[i]]
		if idx < 0 {
			return nil, errors.New("adc: invalid base32 character")
		}
		buf = buf<<5 | uint64(idx)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
		}
	}
	return out, nil
}
