package adc

import (
	"github.com/direct-connect/go-dc/tiger"
)

// PasswordHash computes the Tiger(CID || password || salt) challenge
// response mandated by the HPAS/IGPA exchange (spec.md §4.2), rendered as
// a base32 string. cid is the peer's base32 CID; it is decoded to its raw
// bytes before hashing.
func PasswordHash(cid CID, password string, salt []byte) (string, error) {
	raw, err := base32Decode(string(cid))
	if err != nil {
		return "", err
	}
	h := tiger.New()
	h.Write(raw)
	h.Write([]byte(password))
	h.Write(salt)
	sum := h.Sum(nil)
	return base32Encode(sum), nil
}

// EncodeSalt renders a random salt for IGPA.
func EncodeSalt(salt []byte) string { return base32Encode(salt) }

// DecodeBase32 exposes the package's base32 decoder for hashes and salts
// that arrive on the wire (e.g. the HPAS hash token).
func DecodeBase32(s string) ([]byte, error) { return base32Decode(s) }
