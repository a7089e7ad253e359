package training

import (
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/vision"
)

// EvalSample is one held-out embedding with its ground-truth product.
type EvalSample struct {
	ProductID string
	Embedding []float32
}

// EvaluateTop1 measures how often the nearest reference vector is the
// right product. No threshold or margin applies here; the gate cares
// about ranking quality, not abstention behavior.
func EvaluateTop1(snap *featurecache.Snapshot, samples []EvalSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for _, s := range samples {
		match, _ := vision.BestMatch(s.Embedding, snap, -1, 0)
		if match.ProductID == s.ProductID {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

// ShouldPromote decides whether freshly trained reference vectors may go
// live. A small regression up to minDelta is tolerated; anything worse
// keeps the previous vectors in place. A zero baseline means there is
// nothing to regress against.
func ShouldPromote(baseline, candidate, minDelta float64) bool {
	if baseline <= 0 {
		return true
	}
	return candidate >= baseline-minDelta
}
