package vision

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/imageutil"
	"github.com/shelfvision/shelfvision-go/internal/observability/metrics"
)

// Embedding backends. The pretrained backend uses a stock feature
// extractor whose raw activations need L2 normalization; the metric
// backend is fine-tuned with a metric loss and already emits unit vectors.
const (
	BackendPretrained = "pretrained"
	BackendMetric     = "metric"
)

// Embedder turns a crop into a fixed-dimension feature vector comparable
// by cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Dimension() int
	Backend() string
	Close() error
}

// TFLiteEmbedder implements Embedder over a tflite feature extractor.
type TFLiteEmbedder struct {
	mu        sync.Mutex
	model     *loadedModel
	settings  *conf.ClassifierSettings
	inputEdge int
	normalize bool
	metrics   *metrics.VisionMetrics
}

// NewEmbedder loads the configured classifier backend. Unlike the
// detector, a missing classifier model is fatal: nothing can be recognized
// without embeddings.
func NewEmbedder(settings *conf.ClassifierSettings, visionMetrics *metrics.VisionMetrics) (*TFLiteEmbedder, error) {
	switch settings.Backend {
	case BackendPretrained, BackendMetric:
	default:
		return nil, errors.Newf("unknown classifier backend %q", settings.Backend).
			Component("vision").
			Category(errors.CategoryConfiguration).
			Build()
	}

	model, err := loadModel(settings.ModelPath, settings.Threads, settings.UseXNNPACK)
	if err != nil {
		visionMetrics.RecordModelLoad("classifier", false)
		return nil, err
	}

	e := &TFLiteEmbedder{
		model:     model,
		settings:  settings,
		inputEdge: model.inputSize(),
		normalize: settings.Backend == BackendPretrained,
		metrics:   visionMetrics,
	}
	if e.inputEdge == 0 {
		e.inputEdge = settings.InputSize
	}
	visionMetrics.RecordModelLoad("classifier", true)
	return e, nil
}

// Embed runs the feature extractor on one crop.
func (e *TFLiteEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryCancellation).
			Build()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil {
		return nil, errors.Newf("classifier model is closed").
			Component("vision").
			Category(errors.CategoryModelInit).
			Build()
	}

	start := time.Now()
	tensor := imageutil.ToTensor(img, e.inputEdge)
	copy(e.model.interpreter.GetInputTensor(0).Float32s(), tensor)
	if status := e.model.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("embedding inference failed").
			Component("vision").
			Category(errors.CategoryInference).
			ModelContext(e.settings.ModelPath, "classifier").
			Build()
	}

	out := e.model.interpreter.GetOutputTensor(0).Float32s()
	embedding := make([]float32, len(out))
	copy(embedding, out)
	if e.normalize {
		normalizeL2(embedding)
	}

	e.metrics.RecordEmbeddingDuration(e.settings.Backend, time.Since(start).Seconds())
	return embedding, nil
}

// Dimension returns the configured embedding dimension.
func (e *TFLiteEmbedder) Dimension() int {
	return e.settings.EmbeddingSize
}

// Backend returns the active backend name.
func (e *TFLiteEmbedder) Backend() string {
	return e.settings.Backend
}

// Close releases the classifier model.
func (e *TFLiteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model.close()
	e.model = nil
	return nil
}

func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
}
