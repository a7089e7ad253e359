package ocr

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var marksRemover = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeText folds extracted or catalog text into a canonical matching
// form: lowercased, diacritics stripped, punctuation dropped, whitespace
// collapsed. Both sides of every fuzzy comparison go through this.
func NormalizeText(s string) string {
	folded, _, err := transform.String(marksRemover, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits normalized text into words.
func Tokens(s string) []string {
	normalized := NormalizeText(s)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}
