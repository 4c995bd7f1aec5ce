package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcpp-hub/adchub/adc"
)

func TestUserInfoValidRequiresNickAndAddress(t *testing.T) {
	u := ParseUserInfo([]string{"NIAlice"})
	require.False(t, u.Valid())

	u = ParseUserInfo([]string{"NIAlice", "I41.2.3.4"})
	require.True(t, u.Valid())
}

func TestUserInfoMergeOverlaysOnly(t *testing.T) {
	u := ParseUserInfo([]string{"NIAlice", "DEhello"})
	u.Merge(ParseUserInfo([]string{"DEbye"}))
	require.Equal(t, "Alice", u.Get("NI"))
	require.Equal(t, "bye", u.Get("DE"))
}

func TestUserInfoRedundantWithRequiresFullMatch(t *testing.T) {
	u := ParseUserInfo([]string{"NIAlice", "DEhello"})

	require.True(t, u.redundantWith(ParseUserInfo(nil)))
	require.True(t, u.redundantWith(ParseUserInfo([]string{"NIAlice"})))
	require.False(t, u.redundantWith(ParseUserInfo([]string{"NIAlice", "DEbye"})))
	require.False(t, u.redundantWith(ParseUserInfo([]string{"SU", "TCP4"})))
}

func TestUserInfoTokensSortedAndInfLine(t *testing.T) {
	u := ParseUserInfo([]string{"NIAlice", "DEhello"})
	require.Equal(t, []string{"DEhello", "NIAlice"}, u.Tokens())
	require.Equal(t, "BINF AAAB DEhello NIAlice\n", u.InfLine(adc.Uint32ToSID(1)))
}

func TestUserInfoIsUDPActive(t *testing.T) {
	u := ParseUserInfo([]string{"NIAlice"})
	require.False(t, u.IsUDPActive())
	u.Set("U4", "412")
	require.True(t, u.IsUDPActive())
}
