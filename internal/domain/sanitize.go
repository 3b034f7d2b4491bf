package domain

import (
	"strings"
	"unicode"
)

// DefaultErrorMessageMax caps persisted error text when nothing is configured.
const DefaultErrorMessageMax = 500

// SanitizeMessage keeps printable runes only, turns whitespace control
// characters into single spaces and caps the result at max runes.
func SanitizeMessage(s string, max int) string {
	if max <= 0 {
		max = DefaultErrorMessageMax
	}
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	lastSpace := false
	for _, r := range s {
		if n >= max {
			break
		}
		switch {
		case r == unicode.ReplacementChar:
			continue
		case unicode.IsSpace(r):
			if lastSpace || n == 0 {
				continue
			}
			b.WriteRune(' ')
			lastSpace = true
			n++
		case unicode.IsPrint(r):
			b.WriteRune(r)
			lastSpace = false
			n++
		}
	}
	return strings.TrimRight(b.String(), " ")
}
