package ocr

import "github.com/shelfvision/shelfvision-go/internal/conf"

// FusedScore combines embedding similarity, OCR confidence and text match
// evidence into the final recognition score. Weights are assumed to sum to
// 1 (conf.NormalizeFusionWeights enforces this at load time), which keeps
// the fusion monotone: raising any component never lowers the result.
func FusedScore(w *conf.FusionSettings, embeddingScore, ocrConfidence, textMatchScore float64) float64 {
	return w.EmbeddingWeight*clamp01(embeddingScore) +
		w.OCRWeight*clamp01(ocrConfidence) +
		w.TextMatchWeight*clamp01(textMatchScore)
}

// EmbeddingOnlyScore is the fusion degradation path when OCR is disabled
// or failed for a crop: text evidence contributes nothing and the
// embedding carries full weight, so a strong visual match is not punished
// for a missing label.
func EmbeddingOnlyScore(embeddingScore float64) float64 {
	return clamp01(embeddingScore)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
