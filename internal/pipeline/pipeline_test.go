package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/learning"
	"github.com/shelfvision/shelfvision-go/internal/ocr"
	"github.com/shelfvision/shelfvision-go/internal/vision"
)

// stubDetector returns fixed boxes, simulating Stage-1.
type stubDetector struct {
	detections []vision.Detection
}

func (d *stubDetector) Detect(_ context.Context, _ image.Image) ([]vision.Detection, error) {
	return d.detections, nil
}

// stubEmbedder embeds a crop as its normalized mean RGB.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, img image.Image) ([]float32, error) {
	b := img.Bounds()
	var r, g, bl, n float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr >> 8)
			g += float64(cg >> 8)
			bl += float64(cb >> 8)
			n++
		}
	}
	return []float32{float32(r / n / 255), float32(g / n / 255), float32(bl / n / 255)}, nil
}

func (stubEmbedder) Dimension() int  { return 3 }
func (stubEmbedder) Backend() string { return "stub" }
func (stubEmbedder) Close() error    { return nil }

// stubOCR returns canned text for every crop.
type stubOCR struct {
	text       string
	confidence float64
}

func (s *stubOCR) Recognize(_ context.Context, _ []byte) (*ocr.Result, error) {
	return &ocr.Result{Text: s.text, Confidence: s.confidence}, nil
}

func (s *stubOCR) Close() error { return nil }

// sceneImage paints three 20x20 regions: red, blue and gray.
func sceneImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 20))
	fill := func(rect image.Rectangle, c color.RGBA) {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				img.Set(x, y, c)
			}
		}
	}
	fill(image.Rect(0, 0, 20, 20), color.RGBA{R: 255, A: 255})
	fill(image.Rect(20, 0, 40, 20), color.RGBA{B: 255, A: 255})
	fill(image.Rect(40, 0, 60, 20), color.RGBA{R: 128, G: 128, B: 128, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func threeDetections() []vision.Detection {
	return []vision.Detection{
		{Box: image.Rect(0, 0, 20, 20), Class: vision.ClassBottle, Confidence: 0.9, Source: "model"},
		{Box: image.Rect(20, 0, 40, 20), Class: vision.ClassCan, Confidence: 0.8, Source: "model"},
		{Box: image.Rect(40, 0, 60, 20), Class: vision.ClassBottle, Confidence: 0.7, Source: "model"},
	}
}

func referenceSnapshot() *featurecache.Snapshot {
	return &featurecache.Snapshot{
		Entries: []featurecache.Entry{
			{ProductID: "prod-red", Vector: []float32{1, 0, 0}, ImageCount: 4},
			{ProductID: "prod-blue", Vector: []float32{0, 0, 1}, ImageCount: 4},
		},
		LoadedAt: time.Now(),
	}
}

func testSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Vision.Classifier.Threshold = 0.75
	settings.Vision.Classifier.Margin = 0.05
	settings.Fusion = conf.FusionSettings{EmbeddingWeight: 0.6, OCRWeight: 0.1, TextMatchWeight: 0.3}
	return settings
}

func newTestService(t *testing.T, settings *conf.Settings, ocrEng ocr.Engine, matcher *ocr.Matcher) *Service {
	t.Helper()

	dbSettings := &conf.Settings{}
	dbSettings.Output.SQLite.Enabled = true
	dbSettings.Output.SQLite.Path = ":memory:"
	store := datastore.New(dbSettings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	sessions := learning.NewSessionStore(&conf.LearningSettings{
		SessionTTL: time.Minute, CleanupInterval: time.Minute,
	})
	rebuilder := featurecache.NewRebuilder(store, 3, nil)
	learningSvc := learning.NewService(sessions, store, rebuilder)

	svc := New(settings, &stubDetector{detections: threeDetections()}, stubEmbedder{}, ocrEng, matcher, learningSvc, nil)
	svc.SetSnapshot(referenceSnapshot())
	return svc
}

func TestRecognizeThreeCrops(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)

	result, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)

	require.Len(t, result.Detections, 3)
	assert.Equal(t, 2, result.RecognizedCount, "red and blue crops match their references")
	assert.Equal(t, 1, result.UnrecognizedCount, "the gray crop matches nothing above threshold")

	assert.Equal(t, "prod-red", result.Detections[0].ProductID)
	assert.True(t, result.Detections[0].Recognized)
	assert.Equal(t, "prod-blue", result.Detections[1].ProductID)
	assert.True(t, result.Detections[1].Recognized)
	assert.Empty(t, result.Detections[2].ProductID)
	assert.False(t, result.Detections[2].Recognized)

	assert.NotEmpty(t, result.SessionID)
	for _, d := range result.Detections {
		assert.NotEmpty(t, d.DetectionID)
	}
}

func TestRecognizeOpensFeedbackSession(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)

	result, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)

	sess, err := svc.learning.Sessions().Get(result.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Candidates, 3)

	// The unrecognized crop is correctable through the session.
	unrec := result.Detections[2]
	cand, err := svc.learning.Correct(context.Background(), result.SessionID, unrec.DetectionID, "prod-gray", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, learning.StateCorrected, cand.State)
}

func TestRecognizeEmbeddingOnlyFusionWhenOCRDisabled(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)

	result, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)

	red := result.Detections[0]
	assert.InDelta(t, red.Score.Embedding, red.Score.Fused, 1e-9,
		"with OCR off the fused score is the embedding score")
	assert.Zero(t, red.Score.TextMatch)
	assert.Empty(t, red.OCRText)
}

func TestRecognizeFusesOCREvidence(t *testing.T) {
	t.Parallel()

	dict, err := ocr.NewDictionary([]ocr.CatalogEntry{
		{ProductID: "prod-red", Name: "Campari"},
		{ProductID: "prod-blue", Name: "Bombay Sapphire"},
	})
	require.NoError(t, err)

	settings := testSettings()
	settings.OCR.Enabled = true
	settings.OCR.MinTextLength = 3

	svc := newTestService(t, settings,
		&stubOCR{text: "CAMPARI", confidence: 0.9},
		ocr.NewMatcher(dict, 0.6))

	result, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)

	red := result.Detections[0]
	require.True(t, red.Recognized)
	assert.Equal(t, "campari", red.OCRText)
	assert.InDelta(t, 0.9, red.Score.OCRConfidence, 1e-9)
	assert.InDelta(t, 1.0, red.Score.TextMatch, 1e-9)

	want := 0.6*red.Score.Embedding + 0.1*0.9 + 0.3*1.0
	assert.InDelta(t, want, red.Score.Fused, 1e-9)
	assert.Greater(t, red.Score.Fused, result.Detections[1].Score.Fused,
		"corroborating label text must rank the red crop above the blue one")
}

func TestRecognizeSkipsNonCatalogDetections(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)
	svc.detector = &stubDetector{detections: []vision.Detection{
		{Box: image.Rect(0, 0, 20, 20), Class: vision.ClassBottle, Confidence: 0.9, Source: "model"},
		{Box: image.Rect(20, 0, 40, 20), Class: "person", Confidence: 0.95, Source: "model"},
	}}

	result, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)

	require.Len(t, result.Detections, 1, "only catalog-eligible classes reach the classifier")
	assert.Equal(t, vision.ClassBottle, result.Detections[0].Class)
	assert.Equal(t, 1, result.RecognizedCount)
	assert.Zero(t, result.UnrecognizedCount, "a skipped class is not an unrecognized product")

	sess, err := svc.learning.Sessions().Get(result.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Candidates, 1)
}

func TestRecognizeStoresCropsOnRequest(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)

	result, err := svc.Recognize(context.Background(), sceneImage(t),
		RecognizeOptions{StoreCrops: true, CountSessionID: "count-42"})
	require.NoError(t, err)
	assert.Equal(t, "count-42", result.CountSessionID)

	sess, err := svc.learning.Sessions().Get(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "count-42", sess.CountSessionID)
	for _, cand := range sess.Candidates {
		assert.NotEmpty(t, cand.CropJPEG, "requested crops are kept on the session")
		assert.Len(t, cand.ColorDescriptor, 64)
	}

	// Without the flag no crop bytes are retained.
	plain, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)
	sess, err = svc.learning.Sessions().Get(plain.SessionID)
	require.NoError(t, err)
	for _, cand := range sess.Candidates {
		assert.Empty(t, cand.CropJPEG)
	}
}

func TestRecognizeRejectsGarbageImage(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)

	_, err := svc.Recognize(context.Background(), []byte("not an image"), RecognizeOptions{})
	assert.Error(t, err)
}

func TestSnapshotSwap(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, testSettings(), nil, nil)

	svc.SetSnapshot(&featurecache.Snapshot{})
	result, err := svc.Recognize(context.Background(), sceneImage(t), RecognizeOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.RecognizedCount, "an empty snapshot recognizes nothing")
	assert.Equal(t, 3, result.UnrecognizedCount)
}
