package adc

import "strings"

// Escape replaces the three ADC special characters with their wire escapes,
// per the rule in original_source/src/ADC.cpp (ADC::ESC): space becomes
// \s, newline becomes \n, and a literal backslash is doubled.
func Escape(s string) string {
	if !strings.ContainsAny(s, " \n\\") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ':
			sb.WriteString(`\s`)
		case '\n':
			sb.WriteString(`\n`)
		case '\\':
			sb.WriteByte('\\')
			sb.WriteByte('\\')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// Unescape is the inverse of Escape. It returns ErrBadEscape if the
// string ends in a dangling backslash or escapes an unknown character.
func Unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", ErrBadEscape
		}
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 's':
			sb.WriteByte(' ')
		case '\\':
			sb.WriteByte('\\')
		default:
			return "", ErrBadEscape
		}
	}
	return sb.String(), nil
}
