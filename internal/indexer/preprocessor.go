package indexer

import (
	"strings"
	"unicode"
)

// passagePrefix is prepended to crawled records for e5-style embedding models.
const passagePrefix = "passage:"

// Preprocess normalizes text for indexing: drops a leading "passage:" marker, trims and
// collapses whitespace.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, passagePrefix))
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
