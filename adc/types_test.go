package adc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSIDRoundTrip(t *testing.T) {
	// ParseSID/SIDString only round-trip the 20 bits a four-character
	// base32 token can carry; values above that are for shard-mask
	// arithmetic (adc.Uint32ToSID/SIDToUint32 in hub/servermanager.go),
	// not the wire token itself.
	for _, v := range []uint32{0, 1, 0xFFFFF, 0x1A2B3} {
		s := Uint32ToSID(v)
		parsed, err := ParseSID(SIDString(s))
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
}

func TestParseSIDRejectsBadLength(t *testing.T) {
	_, err := ParseSID("AAA")
	require.Error(t, err)
}

func TestCIDValid(t *testing.T) {
	require.True(t, CID("AAAAAAAAAAAAA").Valid())
	require.False(t, CID("AAAAAAAAAAAAB").Valid()) // low bit set on last char
	require.False(t, CID("TOOSHORT").Valid())
}

func TestBase32RoundTrip(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0xFF, 0xAB, 0xCD}
	enc := base32Encode(data)
	dec, err := base32Decode(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}
