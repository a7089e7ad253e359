// Package pipeline orchestrates a recognition run: Stage-1 detection,
// Stage-2 embedding match, OCR score fusion and session creation for the
// feedback loop.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/imageutil"
	"github.com/shelfvision/shelfvision-go/internal/learning"
	"github.com/shelfvision/shelfvision-go/internal/logging"
	"github.com/shelfvision/shelfvision-go/internal/observability"
	"github.com/shelfvision/shelfvision-go/internal/ocr"
	"github.com/shelfvision/shelfvision-go/internal/vision"
)

// ObjectDetector is the Stage-1 dependency. *vision.Detector satisfies it;
// tests substitute stubs.
type ObjectDetector interface {
	Detect(ctx context.Context, img image.Image) ([]vision.Detection, error)
}

// ScoreBreakdown reports how each signal contributed to the final score.
type ScoreBreakdown struct {
	Embedding     float64 `json:"embedding"`
	OCRConfidence float64 `json:"ocr_confidence"`
	TextMatch     float64 `json:"text_match"`
	Fused         float64 `json:"fused"`
}

// DetectionResult is the verdict for one detected region.
type DetectionResult struct {
	DetectionID        string          `json:"detection_id"`
	Box                image.Rectangle `json:"box"`
	Class              string          `json:"class"`
	DetectorConfidence float32         `json:"detector_confidence"`
	ProductID          string          `json:"product_id,omitempty"`
	RunnerUp           string          `json:"runner_up,omitempty"`
	Recognized         bool            `json:"recognized"`
	Score              ScoreBreakdown  `json:"score"`
	OCRText            string          `json:"ocr_text,omitempty"`
}

// RecognizeOptions are the per-request knobs of a recognition run.
type RecognizeOptions struct {
	// StoreCrops keeps the encoded crop of every detection in the feedback
	// session so reviewers can fetch it later.
	StoreCrops bool
	// CountSessionID associates the run with an external stock-count
	// session. It is echoed back and recorded on the feedback session.
	CountSessionID string
}

// Result is the outcome of one recognition run.
type Result struct {
	SessionID         string            `json:"session_id"`
	CountSessionID    string            `json:"count_session_id,omitempty"`
	Detections        []DetectionResult `json:"detections"`
	RecognizedCount   int               `json:"recognized_count"`
	UnrecognizedCount int               `json:"unrecognized_count"`
	DetectorTimeMs    int64             `json:"detector_time_ms"`
	ClassifierTimeMs  int64             `json:"classifier_time_ms"`
	TotalTimeMs       int64             `json:"total_time_ms"`
}

// Service runs the recognition pipeline against an in-memory snapshot of
// the feature cache.
type Service struct {
	settings *conf.Settings
	detector ObjectDetector
	embedder vision.Embedder
	ocrEng   ocr.Engine
	matcher  *ocr.Matcher
	learning *learning.Service
	metrics  *observability.Metrics
	log      *slog.Logger

	snapMu sync.RWMutex
	snap   *featurecache.Snapshot
}

// New wires a recognition service. ocrEng and matcher may be nil when OCR
// is disabled; obs may be nil in tests.
func New(
	settings *conf.Settings,
	detector ObjectDetector,
	embedder vision.Embedder,
	ocrEng ocr.Engine,
	matcher *ocr.Matcher,
	learningSvc *learning.Service,
	obs *observability.Metrics,
) *Service {
	if obs == nil {
		// The per-component recorders are nil-safe; an empty aggregate
		// lets tests skip metrics wiring entirely.
		obs = &observability.Metrics{}
	}
	return &Service{
		settings: settings,
		detector: detector,
		embedder: embedder,
		ocrEng:   ocrEng,
		matcher:  matcher,
		learning: learningSvc,
		metrics:  obs,
		log:      logging.ForService("pipeline"),
		snap:     &featurecache.Snapshot{},
	}
}

// SetSnapshot swaps the reference vector snapshot the matcher reads.
func (s *Service) SetSnapshot(snap *featurecache.Snapshot) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snap = snap
}

// Snapshot returns the current reference snapshot.
func (s *Service) Snapshot() *featurecache.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Recognize runs the full pipeline on one encoded image.
func (s *Service) Recognize(ctx context.Context, imageBytes []byte, opts RecognizeOptions) (*Result, error) {
	if s.embedder == nil {
		return nil, errors.Newf("no classifier model loaded, recognition unavailable").
			Component("pipeline").
			Category(errors.CategoryModelInit).
			Build()
	}

	total := time.Now()
	img, err := imageutil.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	detectStart := time.Now()
	detections, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	detectorTime := time.Since(detectStart)

	snap := s.Snapshot()
	classifier := &s.settings.Vision.Classifier

	result := &Result{Detections: make([]DetectionResult, 0, len(detections))}
	candidates := make([]*learning.Candidate, 0, len(detections))
	var classifierTime time.Duration

	for _, det := range detections {
		if !vision.IsCatalogClass(det.Class) {
			s.log.Debug("skipping non-catalog detection",
				"class", det.Class, "confidence", det.Confidence)
			continue
		}
		crop := imageutil.Crop(img, det.Box)

		embedStart := time.Now()
		embedding, err := s.embedder.Embed(ctx, crop)
		if err != nil {
			return nil, err
		}
		classifierTime += time.Since(embedStart)

		dr := DetectionResult{
			Box:                det.Box,
			Class:              det.Class,
			DetectorConfidence: det.Confidence,
		}

		match, ok := vision.BestMatch(embedding, snap, classifier.Threshold, classifier.Margin)
		dr.Score.Embedding = match.Score
		dr.RunnerUp = match.RunnerUp
		if ok {
			dr.ProductID = match.ProductID
			dr.Recognized = true
			result.RecognizedCount++
			s.metrics.Vision.RecordMatch("match")
		} else {
			result.UnrecognizedCount++
			s.metrics.Vision.RecordMatch("no_match")
		}

		s.fuseScores(ctx, crop, &dr)

		cand := &learning.Candidate{
			ProductID:       dr.ProductID,
			Score:           dr.Score.Fused,
			Embedding:       embedding,
			ColorDescriptor: imageutil.ColorDescriptor(crop),
		}
		if opts.StoreCrops {
			if jpeg, err := imageutil.EncodeJPEG(crop, 85); err == nil {
				cand.CropJPEG = jpeg
			}
		}
		candidates = append(candidates, cand)
		result.Detections = append(result.Detections, dr)
	}

	sess := s.learning.Sessions().Create(candidates, opts.CountSessionID)
	result.SessionID = sess.ID
	result.CountSessionID = sess.CountSessionID
	for i, cand := range candidates {
		result.Detections[i].DetectionID = cand.DetectionID
	}

	result.DetectorTimeMs = detectorTime.Milliseconds()
	result.ClassifierTimeMs = classifierTime.Milliseconds()
	result.TotalTimeMs = time.Since(total).Milliseconds()

	s.log.Info("recognition run finished",
		"session_id", result.SessionID,
		"detections", len(result.Detections),
		"recognized", result.RecognizedCount,
		"unrecognized", result.UnrecognizedCount,
		"total_ms", result.TotalTimeMs)
	return result, nil
}

// fuseScores runs OCR on the crop and folds text evidence into the final
// score. Any OCR failure degrades to embedding-only scoring; a label that
// cannot be read must never block recognition.
func (s *Service) fuseScores(ctx context.Context, crop image.Image, dr *DetectionResult) {
	if !s.settings.OCR.Enabled || s.ocrEng == nil || s.matcher == nil || dr.ProductID == "" {
		dr.Score.Fused = ocr.EmbeddingOnlyScore(dr.Score.Embedding)
		return
	}

	jpeg, err := imageutil.EncodeJPEG(crop, 85)
	if err != nil {
		dr.Score.Fused = ocr.EmbeddingOnlyScore(dr.Score.Embedding)
		return
	}

	start := time.Now()
	ocrResult, err := s.ocrEng.Recognize(ctx, jpeg)
	if err != nil {
		s.log.Debug("ocr failed, falling back to embedding-only score", "error", err)
		s.metrics.OCR.RecordRequest("error", time.Since(start).Seconds())
		dr.Score.Fused = ocr.EmbeddingOnlyScore(dr.Score.Embedding)
		return
	}
	s.metrics.OCR.RecordRequest("success", time.Since(start).Seconds())

	text := ocr.NormalizeText(ocrResult.Text)
	if len(text) < s.settings.OCR.MinTextLength {
		dr.Score.Fused = ocr.EmbeddingOnlyScore(dr.Score.Embedding)
		return
	}

	dr.OCRText = text
	dr.Score.OCRConfidence = ocrResult.Confidence
	dr.Score.TextMatch = s.matcher.ScoreFor(dr.ProductID, text)
	dr.Score.Fused = ocr.FusedScore(&s.settings.Fusion,
		dr.Score.Embedding, dr.Score.OCRConfidence, dr.Score.TextMatch)
	s.metrics.OCR.RecordTextMatchScore(dr.Score.TextMatch)
}
