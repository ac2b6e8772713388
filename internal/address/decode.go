package address

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DecodePlus reverses percent-plus encoding: '+' becomes a space and valid
// %XX escapes become bytes. Malformed escapes are kept as written and any
// invalid UTF-8 left after decoding is replaced with U+FFFD. The result is
// NFC-normalized so composed and decomposed umlauts compare equal.
func DecodePlus(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return norm.NFC.String(strings.ToValidUTF8(b.String(), "\uFFFD"))
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
