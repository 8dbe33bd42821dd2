package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lower-cases s, folds accents and joins words with hyphens:
// "Transferência PIX" becomes "transferencia-pix".
func Slugify(s string) string {
	// transform.Chain is stateful, so each call builds its own.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// tagSet keeps tags unique in insertion order.
type tagSet struct {
	seen map[string]struct{}
	tags []string
}

func (t *tagSet) add(raw string) {
	tag := Slugify(raw)
	if tag == "" {
		return
	}
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	if _, ok := t.seen[tag]; ok {
		return
	}
	t.seen[tag] = struct{}{}
	t.tags = append(t.tags, tag)
}

func (t *tagSet) list() []string {
	return t.tags
}
