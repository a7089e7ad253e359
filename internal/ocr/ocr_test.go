package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfvision/shelfvision-go/internal/conf"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Campari BITTER", "campari bitter"},
		{"strips diacritics", "Bière Blonde", "biere blonde"},
		{"drops punctuation", "Jack Daniel's No. 7!", "jack daniel s no 7"},
		{"collapses whitespace", "  fever   tree  ", "fever tree"},
		{"empty", "¡¿!?", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func testDictionary(t *testing.T) *Dictionary {
	t.Helper()
	dict, err := NewDictionary([]CatalogEntry{
		{ProductID: "campari-1l", Name: "Campari Bitter", Brand: "Campari"},
		{ProductID: "aperol-70cl", Name: "Aperol", Brand: "Aperol", Aliases: []string{"aperol aperitivo"}},
		{ProductID: "fever-tree-tonic", Name: "Premium Indian Tonic Water", Brand: "Fever-Tree"},
	})
	require.NoError(t, err)
	return dict
}

func TestMatcherExactBrand(t *testing.T) {
	t.Parallel()
	m := NewMatcher(testDictionary(t), 0.6)

	matches := m.Match("CAMPARI bitter 25% vol")
	require.NotEmpty(t, matches)
	assert.Equal(t, "campari-1l", matches[0].ProductID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestMatcherTolerantOfOCRNoise(t *testing.T) {
	t.Parallel()
	m := NewMatcher(testDictionary(t), 0.6)

	// Typical OCR confusions: dropped letter, swapped glyph.
	score := m.ScoreFor("aperol-70cl", "APER0L aperitivo")
	assert.Greater(t, score, 0.6)
}

func TestMatcherRejectsUnrelatedText(t *testing.T) {
	t.Parallel()
	m := NewMatcher(testDictionary(t), 0.6)

	assert.Empty(t, m.Match("draft beer menu happy hour"))
	assert.Zero(t, m.ScoreFor("campari-1l", ""))
}

func TestMatcherDeterministicOrder(t *testing.T) {
	t.Parallel()
	dict, err := NewDictionary([]CatalogEntry{
		{ProductID: "b-prod", Name: "tonic"},
		{ProductID: "a-prod", Name: "tonic"},
	})
	require.NoError(t, err)

	matches := NewMatcher(dict, 0.5).Match("tonic")
	require.Len(t, matches, 2)
	assert.Equal(t, "a-prod", matches[0].ProductID, "equal scores order by product id")
}

func TestDictionaryRejectsMissingProductID(t *testing.T) {
	t.Parallel()
	_, err := NewDictionary([]CatalogEntry{{Name: "orphan"}})
	assert.Error(t, err)
}

func TestFusedScoreMonotone(t *testing.T) {
	t.Parallel()
	w := &conf.FusionSettings{EmbeddingWeight: 0.6, OCRWeight: 0.1, TextMatchWeight: 0.3}

	base := FusedScore(w, 0.5, 0.5, 0.5)
	assert.Greater(t, FusedScore(w, 0.6, 0.5, 0.5), base)
	assert.Greater(t, FusedScore(w, 0.5, 0.6, 0.5), base)
	assert.Greater(t, FusedScore(w, 0.5, 0.5, 0.6), base)
}

func TestFusedScoreBounds(t *testing.T) {
	t.Parallel()
	w := &conf.FusionSettings{EmbeddingWeight: 0.6, OCRWeight: 0.1, TextMatchWeight: 0.3}

	assert.InDelta(t, 1.0, FusedScore(w, 1, 1, 1), 1e-9)
	assert.Zero(t, FusedScore(w, 0, 0, 0))
	assert.InDelta(t, 0.6, FusedScore(w, 2.0, -1, 0), 1e-9, "components clamp to [0,1]")
}

func TestEmbeddingOnlyScore(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.82, EmbeddingOnlyScore(0.82), 1e-9)
	assert.Zero(t, EmbeddingOnlyScore(-0.3))
}
