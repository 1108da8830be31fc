package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Hashtag turns a phrase into a CamelCase hashtag ("car deals" -> "#CarDeals").
// Returns "" when nothing usable remains.
func Hashtag(phrase string) string {
	phrase = strings.TrimPrefix(strings.TrimSpace(phrase), "#")
	words := strings.FieldsFunc(phrase, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return ""
	}
	caser := cases.Title(language.Und)
	var b strings.Builder
	b.WriteByte('#')
	for _, word := range words {
		b.WriteString(caser.String(word))
	}
	return b.String()
}

// BuildCaption appends the brand hashtags to body, skipping duplicates and
// tags already present in the body.
func BuildCaption(body string, hashtags []string) string {
	body = strings.TrimSpace(body)
	lowerBody := strings.ToLower(body)
	seen := map[string]struct{}{}
	var tags []string
	for _, phrase := range hashtags {
		tag := Hashtag(phrase)
		key := strings.ToLower(tag)
		if tag == "" || strings.Contains(lowerBody, key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return body
	}
	if body == "" {
		return strings.Join(tags, " ")
	}
	return body + "\n\n" + strings.Join(tags, " ")
}
