package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// tokenize splits text into lowercase alphanumeric tokens of length
// >= 2, normalizing to NFC first so accented terms and their
// decomposed forms index identically.
func tokenize(text string) []string {
	normalized := norm.NFC.String(text)
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if len(lower) < 2 {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}
