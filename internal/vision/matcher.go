package vision

import (
	"math"

	"github.com/shelfvision/shelfvision-go/internal/featurecache"
)

// Match is the classifier's verdict for one crop.
type Match struct {
	ProductID   string
	Score       float64 // cosine similarity to the best reference vector
	RunnerUp    string
	RunnerUpSim float64
}

// BestMatch compares an embedding against every cached reference vector
// and returns the best product when it clears both acceptance gates: the
// similarity threshold and the margin over the runner-up. A rejected
// match still reports the nearest candidate and runner-up so callers can
// surface why the crop was not recognized. Equal similarities break ties
// by product id so the result is deterministic.
func BestMatch(embedding []float32, snap *featurecache.Snapshot, threshold, margin float64) (Match, bool) {
	var best, second Match
	best.Score = -2
	second.Score = -2

	for i := range snap.Entries {
		entry := &snap.Entries[i]
		if len(entry.Vector) != len(embedding) {
			continue
		}
		sim := cosine(embedding, entry.Vector)
		switch {
		case sim > best.Score || (sim == best.Score && entry.ProductID < best.ProductID):
			second = best
			best = Match{ProductID: entry.ProductID, Score: sim}
		case sim > second.Score:
			second = Match{ProductID: entry.ProductID, Score: sim}
		}
	}

	if best.ProductID == "" {
		// Nothing in the snapshot was comparable.
		return Match{}, false
	}
	if second.Score > -2 {
		best.RunnerUp = second.ProductID
		best.RunnerUpSim = second.Score
	}

	if best.Score < threshold {
		return best, false
	}
	if best.RunnerUp != "" && best.Score-best.RunnerUpSim < margin {
		return best, false
	}
	return best, true
}

// cosine computes cosine similarity with float64 accumulators.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
