// Package featurecache builds and serves per-product reference vectors.
// Each product's verified training embeddings are collapsed into a single
// outlier-trimmed mean that Stage-2 matching compares against.
package featurecache

import (
	"math"
	"sort"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// normEpsilon is the smallest L2 norm considered safe to normalize by.
// Anything below it means the inlier vectors cancelled each other out.
const normEpsilon = 1e-6

// AggregateResult carries the aggregated vector plus bookkeeping about
// how many inputs survived the trim.
type AggregateResult struct {
	Vector       []float32
	InlierCount  int
	TrimmedCount int

	// Degenerate reports that the inlier mean had a near-zero norm and the
	// vector was left unnormalized. Callers must not persist such a result.
	Degenerate bool
}

// Aggregate collapses a product's embedding vectors into one reference
// vector. With three or fewer inputs it takes a plain mean. With more it
// trims vectors whose distance to the mean falls above the 75th percentile,
// then re-means the inliers. The result is L2-normalized.
//
// The computation is deterministic: the same vectors in the same order
// always produce a bit-identical result.
func Aggregate(vectors [][]float32) (*AggregateResult, error) {
	if len(vectors) == 0 {
		return nil, errors.Newf("no vectors to aggregate").
			Component("featurecache").
			Category(errors.CategoryAggregation).
			Build()
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.Newf("cannot aggregate zero-dimensional vectors").
			Component("featurecache").
			Category(errors.CategoryAggregation).
			Build()
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Newf("vector %d has dimension %d, expected %d", i, len(v), dim).
				Component("featurecache").
				Category(errors.CategoryAggregation).
				Build()
		}
	}

	inliers := vectors
	trimmed := 0
	if len(vectors) > 3 {
		inliers = trimOutliers(vectors, mean(vectors, dim))
		trimmed = len(vectors) - len(inliers)
	}

	result := &AggregateResult{
		Vector:       mean(inliers, dim),
		InlierCount:  len(inliers),
		TrimmedCount: trimmed,
	}

	norm := l2Norm(result.Vector)
	if norm < normEpsilon {
		result.Degenerate = true
		return result, nil
	}
	inv := float32(1.0 / norm)
	for i := range result.Vector {
		result.Vector[i] *= inv
	}
	return result, nil
}

// mean computes the element-wise mean with float64 accumulators so the
// order-dependent rounding of float32 sums cannot creep in.
func mean(vectors [][]float32, dim int) []float32 {
	acc := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			acc[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range acc {
		out[i] = float32(s / n)
	}
	return out
}

// trimOutliers keeps vectors whose Euclidean distance to the centroid is at
// or below the 75th-percentile distance (nearest-rank). Ties with the cutoff
// stay in, so at least three quarters of the inputs always survive.
func trimOutliers(vectors [][]float32, centroid []float32) [][]float32 {
	dists := make([]float64, len(vectors))
	for i, v := range vectors {
		dists[i] = euclidean(v, centroid)
	}

	sorted := make([]float64, len(dists))
	copy(sorted, dists)
	sort.Float64s(sorted)
	cutoff := sorted[int(math.Ceil(0.75*float64(len(sorted))))-1]

	inliers := make([][]float32, 0, len(vectors))
	for i, v := range vectors {
		if dists[i] <= cutoff {
			inliers = append(inliers, v)
		}
	}
	return inliers
}

// CompareVectors orders vectors lexicographically by element, shorter
// prefix first. It defines the canonical aggregation input order.
func CompareVectors(a, b []float32) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// SortVectors puts vectors into the canonical order so the aggregate is a
// pure function of the vector set, not of insertion or arrival order.
func SortVectors(vectors [][]float32) {
	sort.Slice(vectors, func(i, j int) bool {
		return CompareVectors(vectors[i], vectors[j]) < 0
	})
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
