package ingest

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// MaxDescriptionLength is counted in runes.
const MaxDescriptionLength = 500

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	markupRe      = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Sanitize turns a provider description into plain text: script and style
// blocks and any remaining markup are removed, entities are unescaped,
// control characters dropped, whitespace collapsed and the result truncated.
func Sanitize(s string) string {
	s = scriptBlockRe.ReplaceAllString(s, " ")
	s = styleBlockRe.ReplaceAllString(s, " ")
	s = markupRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	// Unescaping can reintroduce angle brackets.
	s = markupRe.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return truncate(strings.TrimSpace(s), MaxDescriptionLength)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
