package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Vision: VisionSettings{
			Detector: DetectorSettings{
				Threshold:     0.5,
				MaxDetections: 32,
			},
			Classifier: ClassifierSettings{
				Backend:       "pretrained",
				EmbeddingSize: 1280,
				InputSize:     224,
				Threshold:     0.75,
				Margin:        0.05,
			},
		},
		Fusion:   FusionSettings{EmbeddingWeight: 0.6, OCRWeight: 0.1, TextMatchWeight: 0.3},
		Learning: LearningSettings{SessionTTL: 30 * time.Minute},
		Rebuild:  RebuildSettings{Concurrency: 4},
		Output:   OutputSettings{SQLite: SQLiteSettings{Enabled: true, Path: "test.db"}},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero embedding size", func(s *Settings) { s.Vision.Classifier.EmbeddingSize = 0 }},
		{"threshold above one", func(s *Settings) { s.Vision.Classifier.Threshold = 1.5 }},
		{"negative margin", func(s *Settings) { s.Vision.Classifier.Margin = -0.1 }},
		{"unknown backend", func(s *Settings) { s.Vision.Classifier.Backend = "resnet" }},
		{"no database output", func(s *Settings) { s.Output.SQLite.Enabled = false }},
		{"zero session ttl", func(s *Settings) { s.Learning.SessionTTL = 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestNormalizeFusionWeights(t *testing.T) {
	t.Parallel()

	f := FusionSettings{EmbeddingWeight: 2, OCRWeight: 1, TextMatchWeight: 1}
	NormalizeFusionWeights(&f)
	assert.InDelta(t, 0.5, f.EmbeddingWeight, 1e-9)
	assert.InDelta(t, 0.25, f.OCRWeight, 1e-9)
	assert.InDelta(t, 1.0, f.EmbeddingWeight+f.OCRWeight+f.TextMatchWeight, 1e-9)
}

func TestNormalizeFusionWeightsZeroTotal(t *testing.T) {
	t.Parallel()

	f := FusionSettings{}
	NormalizeFusionWeights(&f)
	assert.Equal(t, 1.0, f.EmbeddingWeight)
	assert.Equal(t, 0.0, f.OCRWeight)
	assert.Equal(t, 0.0, f.TextMatchWeight)
}
