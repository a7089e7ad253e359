package vision

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
)

func TestFilterDetectionsThresholdBoundary(t *testing.T) {
	t.Parallel()

	raw := []rawDetection{
		{score: 0.51, classIndex: 0},
		{score: 0.50, classIndex: 1},
		{score: 0.49999, classIndex: 2},
	}
	kept := filterDetections(raw, 0.5, 0)
	require.Len(t, kept, 2, "score exactly at the threshold passes, strictly below is dropped")
	assert.Equal(t, 0, kept[0].classIndex)
	assert.Equal(t, 1, kept[1].classIndex)
}

func TestFilterDetectionsCap(t *testing.T) {
	t.Parallel()

	raw := []rawDetection{
		{score: 0.9}, {score: 0.8}, {score: 0.7}, {score: 0.6},
	}
	kept := filterDetections(raw, 0.5, 2)
	assert.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].score)
}

func TestDenormalizeBoxClampsToBounds(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 100, 200)
	box := denormalizeBox(rawDetection{yMin: -0.1, xMin: 0.5, yMax: 1.2, xMax: 0.9}, bounds)
	assert.Equal(t, image.Rect(50, 0, 90, 200), box)
}

func TestDetectorFullFrameFallback(t *testing.T) {
	t.Parallel()

	d := NewDetector(&conf.DetectorSettings{}, nil)
	assert.False(t, d.Available())

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	detections, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, ClassFullFrame, detections[0].Class)
	assert.Equal(t, img.Bounds(), detections[0].Box)
	assert.Equal(t, float32(1), detections[0].Confidence)
}

func TestDetectorFallbackOnBrokenModelPath(t *testing.T) {
	t.Parallel()

	d := NewDetector(&conf.DetectorSettings{
		ModelPath: "/nonexistent/detector.tflite",
		LabelPath: "/nonexistent/labels.txt",
	}, nil)
	assert.False(t, d.Available(), "broken model must degrade, not crash")
}

func TestIsCatalogClass(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCatalogClass(ClassBottle))
	assert.True(t, IsCatalogClass(ClassCan))
	assert.True(t, IsCatalogClass(ClassFullFrame))
	assert.False(t, IsCatalogClass("person"))
	assert.False(t, IsCatalogClass(""))
}

func snapshotFor(entries ...featurecache.Entry) *featurecache.Snapshot {
	return &featurecache.Snapshot{Entries: entries}
}

func TestBestMatchAcceptsAboveThreshold(t *testing.T) {
	t.Parallel()

	snap := snapshotFor(
		featurecache.Entry{ProductID: "prod-a", Vector: []float32{1, 0}},
		featurecache.Entry{ProductID: "prod-b", Vector: []float32{0, 1}},
	)
	match, ok := BestMatch([]float32{0.99, 0.01}, snap, 0.75, 0.05)
	require.True(t, ok)
	assert.Equal(t, "prod-a", match.ProductID)
	assert.Greater(t, match.Score, 0.99)
	assert.Equal(t, "prod-b", match.RunnerUp)
}

func TestBestMatchRejectsBelowThreshold(t *testing.T) {
	t.Parallel()

	snap := snapshotFor(
		featurecache.Entry{ProductID: "prod-a", Vector: []float32{1, 0}},
		featurecache.Entry{ProductID: "prod-b", Vector: []float32{0, -1}},
	)
	match, ok := BestMatch([]float32{1, 1}, snap, 0.99, 0.05)
	assert.False(t, ok)
	assert.Equal(t, "prod-a", match.ProductID,
		"rejected match still reports the nearest candidate for diagnostics")
	assert.InDelta(t, math.Sqrt2/2, match.Score, 1e-6)
	assert.Equal(t, "prod-b", match.RunnerUp)
}

func TestBestMatchRejectsWithinMargin(t *testing.T) {
	t.Parallel()

	// Two references almost equidistant from the query: ambiguous, so the
	// classifier must abstain even though both clear the threshold.
	snap := snapshotFor(
		featurecache.Entry{ProductID: "prod-a", Vector: []float32{1, 0.1}},
		featurecache.Entry{ProductID: "prod-b", Vector: []float32{1, 0.12}},
	)
	match, ok := BestMatch([]float32{1, 0.11}, snap, 0.5, 0.05)
	assert.False(t, ok)
	assert.NotEmpty(t, match.ProductID, "rejected match still reports the candidate for diagnostics")
}

func TestBestMatchEmptySnapshot(t *testing.T) {
	t.Parallel()

	_, ok := BestMatch([]float32{1, 0}, snapshotFor(), 0.5, 0.05)
	assert.False(t, ok)
}

func TestBestMatchSkipsDimensionMismatch(t *testing.T) {
	t.Parallel()

	snap := snapshotFor(
		featurecache.Entry{ProductID: "prod-3d", Vector: []float32{1, 0, 0}},
		featurecache.Entry{ProductID: "prod-2d", Vector: []float32{1, 0}},
	)
	match, ok := BestMatch([]float32{1, 0}, snap, 0.5, 0.05)
	require.True(t, ok)
	assert.Equal(t, "prod-2d", match.ProductID)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
}
