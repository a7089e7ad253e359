package conf

import (
	"errors"
	"fmt"
)

// errorsAs is a small indirection so config.go does not shadow the
// stdlib errors package with the project one.
func errorsAs(err error, target any) bool {
	return errors.As(err, target)
}

// ValidateSettings checks the loaded settings for values the pipeline
// cannot run with. It returns the first problem found.
func ValidateSettings(s *Settings) error {
	if s.Vision.Classifier.EmbeddingSize <= 0 {
		return fmt.Errorf("vision.classifier.embeddingsize must be positive, got %d", s.Vision.Classifier.EmbeddingSize)
	}
	if s.Vision.Classifier.InputSize <= 0 {
		return fmt.Errorf("vision.classifier.inputsize must be positive, got %d", s.Vision.Classifier.InputSize)
	}
	if s.Vision.Classifier.Threshold < 0 || s.Vision.Classifier.Threshold > 1 {
		return fmt.Errorf("vision.classifier.threshold must be in [0,1], got %g", s.Vision.Classifier.Threshold)
	}
	if s.Vision.Classifier.Margin < 0 {
		return fmt.Errorf("vision.classifier.margin must not be negative, got %g", s.Vision.Classifier.Margin)
	}
	switch s.Vision.Classifier.Backend {
	case "pretrained", "metric":
	default:
		return fmt.Errorf("vision.classifier.backend must be \"pretrained\" or \"metric\", got %q", s.Vision.Classifier.Backend)
	}
	if s.Vision.Detector.Threshold < 0 || s.Vision.Detector.Threshold > 1 {
		return fmt.Errorf("vision.detector.threshold must be in [0,1], got %g", s.Vision.Detector.Threshold)
	}
	if s.Vision.Detector.MaxDetections <= 0 {
		return fmt.Errorf("vision.detector.maxdetections must be positive, got %d", s.Vision.Detector.MaxDetections)
	}
	if s.Fusion.EmbeddingWeight < 0 || s.Fusion.OCRWeight < 0 || s.Fusion.TextMatchWeight < 0 {
		return fmt.Errorf("fusion weights must not be negative")
	}
	if s.Learning.SessionTTL <= 0 {
		return fmt.Errorf("learning.sessionttl must be positive, got %s", s.Learning.SessionTTL)
	}
	if s.Rebuild.Concurrency <= 0 {
		return fmt.Errorf("rebuild.concurrency must be positive, got %d", s.Rebuild.Concurrency)
	}
	if !s.Output.SQLite.Enabled && !s.Output.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable output.sqlite or output.mysql")
	}
	return nil
}
