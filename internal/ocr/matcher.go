package ocr

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// TextMatch is one product's fuzzy match against extracted text.
type TextMatch struct {
	ProductID string
	Term      string  // the dictionary term that matched best
	Score     float64 // similarity in [0, 1]
}

// Matcher scores extracted label text against the catalog dictionary.
type Matcher struct {
	dict     *Dictionary
	minScore float64
}

// NewMatcher creates a matcher. Matches below minScore are dropped.
func NewMatcher(dict *Dictionary, minScore float64) *Matcher {
	return &Matcher{dict: dict, minScore: minScore}
}

// Match fuzzy-matches text against every catalog term and returns per
// product best scores, highest first. Product id breaks score ties so the
// ordering is deterministic.
func (m *Matcher) Match(text string) []TextMatch {
	tokens := Tokens(text)
	if len(tokens) == 0 || m.dict == nil {
		return nil
	}

	matches := make([]TextMatch, 0, 4)
	for _, entry := range m.dict.entries {
		best := TextMatch{ProductID: entry.productID}
		for _, term := range entry.terms {
			if score := termScore(term, tokens); score > best.Score {
				best.Score = score
				best.Term = term
			}
		}
		if best.Score >= m.minScore && best.Score > 0 {
			matches = append(matches, best)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ProductID < matches[j].ProductID
	})
	return matches
}

// ScoreFor returns the best match score for one product, 0 when the text
// matches nothing of that product.
func (m *Matcher) ScoreFor(productID, text string) float64 {
	for _, match := range m.Match(text) {
		if match.ProductID == productID {
			return match.Score
		}
	}
	return 0
}

// termScore slides a window of the term's token length over the extracted
// tokens and keeps the best Levenshtein similarity. OCR output usually
// carries extra words around the brand name; the window ignores them.
func termScore(term string, tokens []string) float64 {
	width := len(strings.Fields(term))
	if width == 0 || width > len(tokens) {
		// Short text still gets one shot against the whole term.
		return levenshtein.Match(term, strings.Join(tokens, " "), nil)
	}

	var best float64
	for i := 0; i+width <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+width], " ")
		if score := levenshtein.Match(term, window, nil); score > best {
			best = score
		}
	}
	return best
}
