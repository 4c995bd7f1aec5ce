package adc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"hello",
		"hi all",
		"back\\slash",
		"line\nbreak",
		"mix \\ of\nall three",
	}
	for _, c := range cases {
		esc := Escape(c)
		got, err := Unescape(esc)
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestUnescapeBadEscape(t *testing.T) {
	_, err := Unescape(`trailing\`)
	require.ErrorIs(t, err, ErrBadEscape)

	_, err = Unescape(`bad\xescape`)
	require.ErrorIs(t, err, ErrBadEscape)
}

func TestLineRoundTrip(t *testing.T) {
	tokens := []string{"BINF", "AAAA", "NIAlice", "Hi\\sall"}
	raw := EncodeLine(tokens)
	line, err := DecodeLine(raw)
	require.NoError(t, err)
	require.Equal(t, tokens, line.Tokens)
}

func TestDecodeEmptyLineIsKeepAlive(t *testing.T) {
	line, err := DecodeLine("")
	require.NoError(t, err)
	require.True(t, line.Empty())
}

func TestHeaderParsing(t *testing.T) {
	line, err := DecodeLine("BINF AAAA NIAlice")
	require.NoError(t, err)
	h, ok := line.Header()
	require.True(t, ok)
	require.Equal(t, byte('B'), h.Type)
	require.Equal(t, "INF", h.Cmd)
}

func TestHeaderRejectsShortToken(t *testing.T) {
	line, err := DecodeLine("BIN AAAA")
	require.NoError(t, err)
	_, ok := line.Header()
	require.False(t, ok)
}
