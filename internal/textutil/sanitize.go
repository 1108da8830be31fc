package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugRunes = 64

// Slug turns value into an object-key segment: accents are folded to ASCII
// where possible, letters are lowercased, and every run of other runes
// becomes a single hyphen. Empty results become "unknown".
func Slug(value string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range norm.NFD.String(value) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
		if b.Len() >= maxSlugRunes {
			break
		}
	}
	out := b.String()
	if len(out) > maxSlugRunes {
		out = out[:maxSlugRunes]
	}
	out = strings.Trim(out, "-")
	if out == "" {
		return "unknown"
	}
	return out
}
