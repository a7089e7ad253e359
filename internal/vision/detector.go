package vision

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/imageutil"
	"github.com/shelfvision/shelfvision-go/internal/logging"
	"github.com/shelfvision/shelfvision-go/internal/observability/metrics"
)

// Detection is one localized candidate region from Stage-1.
type Detection struct {
	Box        image.Rectangle
	Class      string
	Confidence float32
	Source     string // "model" or "full_frame"
}

// rawDetection is one unfiltered SSD output row in normalized coordinates.
type rawDetection struct {
	yMin, xMin, yMax, xMax float32
	classIndex             int
	score                  float32
}

// Detector locates catalog-relevant objects in a scene image. When no
// detector model is available it degrades to a single full-frame region so
// the classifier can still run on close-up shots.
type Detector struct {
	mu        sync.Mutex
	model     *loadedModel
	labels    []string
	settings  *conf.DetectorSettings
	inputEdge int
	log       *slog.Logger
	metrics   *metrics.VisionMetrics
}

// NewDetector loads the detector model and labels. A missing or broken
// model is not fatal; the detector starts in full-frame fallback mode and
// logs why.
func NewDetector(settings *conf.DetectorSettings, visionMetrics *metrics.VisionMetrics) *Detector {
	d := &Detector{
		settings: settings,
		log:      logging.ForService("vision"),
		metrics:  visionMetrics,
	}

	if settings.ModelPath == "" {
		d.log.Warn("no detector model configured, running in full-frame fallback mode")
		return d
	}

	labels, err := loadLabels(settings.LabelPath)
	if err != nil {
		d.log.Warn("detector label file unavailable, running in full-frame fallback mode",
			"path", settings.LabelPath, "error", err)
		d.metrics.RecordModelLoad("detector", false)
		return d
	}

	model, err := loadModel(settings.ModelPath, settings.Threads, settings.UseXNNPACK)
	if err != nil {
		d.log.Warn("detector model unavailable, running in full-frame fallback mode",
			"path", settings.ModelPath, "error", err)
		d.metrics.RecordModelLoad("detector", false)
		return d
	}

	d.model = model
	d.labels = labels
	d.inputEdge = model.inputSize()
	d.metrics.RecordModelLoad("detector", true)
	d.log.Info("detector model loaded",
		"path", settings.ModelPath,
		"input_size", d.inputEdge,
		"classes", len(labels))
	return d
}

// Available reports whether a real detector model is loaded.
func (d *Detector) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model != nil
}

// Detect returns candidate regions ordered by descending confidence. Every
// returned detection scored at or above the configured threshold; regions
// strictly below it never surface.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryCancellation).
			Build()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	if d.model == nil {
		d.metrics.RecordDetectionDuration("full_frame", time.Since(start).Seconds())
		d.metrics.RecordDetection(ClassFullFrame)
		return []Detection{{
			Box:        img.Bounds(),
			Class:      ClassFullFrame,
			Confidence: 1,
			Source:     "full_frame",
		}}, nil
	}

	tensor := imageutil.ToTensor(img, d.inputEdge)
	copy(d.model.interpreter.GetInputTensor(0).Float32s(), tensor)
	if status := d.model.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("detector inference failed").
			Component("vision").
			Category(errors.CategoryInference).
			ModelContext(d.settings.ModelPath, "detector").
			Build()
	}

	raw := d.readOutputs()
	kept := filterDetections(raw, float32(d.settings.Threshold), d.settings.MaxDetections)

	bounds := img.Bounds()
	detections := make([]Detection, 0, len(kept))
	for _, r := range kept {
		det := Detection{
			Box:        denormalizeBox(r, bounds),
			Class:      d.className(r.classIndex),
			Confidence: r.score,
			Source:     "model",
		}
		detections = append(detections, det)
		d.metrics.RecordDetection(det.Class)
	}
	d.metrics.RecordDetectionDuration("model", time.Since(start).Seconds())
	return detections, nil
}

// readOutputs decodes the four standard SSD postprocess tensors: boxes,
// class indices, scores and the valid-detection count.
func (d *Detector) readOutputs() []rawDetection {
	interp := d.model.interpreter
	boxes := interp.GetOutputTensor(0).Float32s()
	classes := interp.GetOutputTensor(1).Float32s()
	scores := interp.GetOutputTensor(2).Float32s()
	count := int(interp.GetOutputTensor(3).Float32s()[0])

	if count > len(scores) {
		count = len(scores)
	}
	raw := make([]rawDetection, 0, count)
	for i := 0; i < count; i++ {
		if i*4+3 >= len(boxes) || i >= len(classes) {
			break
		}
		raw = append(raw, rawDetection{
			yMin:       boxes[i*4],
			xMin:       boxes[i*4+1],
			yMax:       boxes[i*4+2],
			xMax:       boxes[i*4+3],
			classIndex: int(classes[i]),
			score:      scores[i],
		})
	}
	return raw
}

func (d *Detector) className(index int) string {
	if index < 0 || index >= len(d.labels) {
		return "unknown"
	}
	return d.labels[index]
}

// filterDetections applies the confidence threshold and the detection cap.
// A score exactly at the threshold passes; anything strictly below it is
// dropped. Input order is preserved for equal scores, so results stay
// deterministic.
func filterDetections(raw []rawDetection, threshold float32, maxDetections int) []rawDetection {
	kept := make([]rawDetection, 0, len(raw))
	for _, r := range raw {
		if r.score < threshold {
			continue
		}
		kept = append(kept, r)
		if maxDetections > 0 && len(kept) == maxDetections {
			break
		}
	}
	return kept
}

// denormalizeBox maps normalized SSD coordinates onto image pixels,
// clamped to the image bounds.
func denormalizeBox(r rawDetection, bounds image.Rectangle) image.Rectangle {
	w := float32(bounds.Dx())
	h := float32(bounds.Dy())
	box := image.Rect(
		bounds.Min.X+int(r.xMin*w),
		bounds.Min.Y+int(r.yMin*h),
		bounds.Min.X+int(r.xMax*w),
		bounds.Min.Y+int(r.yMax*h),
	)
	return box.Intersect(bounds)
}

// Close releases the detector model.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.model.close()
	d.model = nil
}
