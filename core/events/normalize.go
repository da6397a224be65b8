package events

import (
	"strings"
	"unicode"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Normalize lowercases text, removes punctuation and collapses whitespace so
// that phrases can be compared by substring containment. It is idempotent.
func Normalize(text string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) || unicode.IsPunct(r) {
			return -1
		}
		return r
	}, strings.ToLower(text))

	return strings.Join(strings.Fields(stripped), " ")
}
