package textutil

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxTitleRunes is the longest title the caption provider accepts.
const MaxTitleRunes = 50

// CleanTitle decodes HTML entities, normalizes to NFC, drops control and
// symbol runes (emoji), collapses whitespace, and caps the result at
// MaxTitleRunes, cutting at a word boundary when one exists.
func CleanTitle(raw string) string {
	decoded := norm.NFC.String(html.UnescapeString(raw))
	var b strings.Builder
	prevSpace := true
	for _, r := range decoded {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		case unicode.IsControl(r), unicode.Is(unicode.So, r), unicode.Is(unicode.Cs, r):
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return Truncate(strings.TrimSpace(b.String()), MaxTitleRunes)
}

// Truncate shortens s to at most limit runes, preferring the last space
// before the limit.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	cut := runes[:limit]
	if idx := lastSpace(cut); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(string(cut))
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
