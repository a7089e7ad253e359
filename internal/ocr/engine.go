// Package ocr extracts label text from detection crops and turns it into
// catalog match evidence for score fusion.
package ocr

import (
	"context"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Word is one recognized token with the engine's confidence in [0, 1].
type Word struct {
	Text       string
	Confidence float64
}

// Result is the outcome of recognizing one crop.
type Result struct {
	Text       string  // full extracted text, engine order
	Confidence float64 // mean word confidence in [0, 1]
	Words      []Word
}

// Engine abstracts the OCR backend so the pipeline and tests do not bind
// to tesseract directly.
type Engine interface {
	Recognize(ctx context.Context, imageBytes []byte) (*Result, error)
	Close() error
}

// TesseractEngine runs recognition through a shared gosseract client. The
// client is not safe for concurrent use, so calls are serialized.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine creates an engine bound to the given tesseract
// language code. An empty language falls back to "eng".
func NewTesseractEngine(language string) (*TesseractEngine, error) {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		_ = client.Close()
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryOCR).
			Context("language", language).
			Build()
	}
	return &TesseractEngine{client: client}, nil
}

// Recognize extracts text and per-word confidences from an encoded image.
func (e *TesseractEngine) Recognize(ctx context.Context, imageBytes []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryCancellation).
			Build()
	}
	if len(imageBytes) == 0 {
		return nil, errors.Newf("empty image passed to ocr").
			Component("ocr").
			Category(errors.CategoryValidation).
			Build()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(imageBytes); err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryOCR).
			Context("operation", "set_image").
			Build()
	}

	text, err := e.client.Text()
	if err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryOCR).
			Context("operation", "extract_text").
			Build()
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryOCR).
			Context("operation", "word_boxes").
			Build()
	}

	result := &Result{Text: text, Words: make([]Word, 0, len(boxes))}
	var sum float64
	for _, box := range boxes {
		// gosseract reports word confidence on a 0..100 scale.
		conf := box.Confidence / 100
		result.Words = append(result.Words, Word{Text: box.Word, Confidence: conf})
		sum += conf
	}
	if len(result.Words) > 0 {
		result.Confidence = sum / float64(len(result.Words))
	}
	return result, nil
}

// Close releases the tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
