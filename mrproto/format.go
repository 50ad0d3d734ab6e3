package mrproto

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// FormatDouble writes v as the shortest decimal that parses back to v and
// always keeps a fractional part, so whole numbers read "6.0" not "6".
func FormatDouble(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".NI") {
		return s
	}
	return s + ".0"
}

// ValidUTF8 replaces every byte that is not part of a valid UTF-8 sequence
// with U+FFFD. A JSON round trip makes the same substitution, so strings
// compared after ValidUTF8 stay distinct across an encoded shuffle.
func ValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		// ranging yields utf8.RuneError for each invalid byte
		b.WriteRune(r)
	}
	return b.String()
}
