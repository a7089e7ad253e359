// Package vision runs the two-stage recognizer: a Stage-1 object detector
// locating catalog-relevant containers and a Stage-2 embedding classifier
// matching crops against per-product reference vectors.
package vision

import (
	"bufio"
	"os"
	"strings"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Object classes the Stage-1 detector is trained on. Only these reach
// Stage-2; everything else in a bar scene is noise.
const (
	ClassBottle = "bottle"
	ClassCan    = "can"
	ClassGlass  = "glass"
	ClassCup    = "cup"
	ClassBox    = "box"

	// ClassFullFrame marks the degraded path: no detector model loaded,
	// the whole image is treated as one candidate region.
	ClassFullFrame = "full_frame"
)

var catalogClasses = map[string]bool{
	ClassBottle: true,
	ClassCan:    true,
	ClassGlass:  true,
	ClassCup:    true,
	ClassBox:    true,
}

// IsCatalogClass reports whether a detector class is eligible for Stage-2
// classification.
func IsCatalogClass(class string) bool {
	return catalogClasses[class] || class == ClassFullFrame
}

// loadLabels reads a detector label file, one class name per line. Line
// index corresponds to the class index in the model output.
func loadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label file %s is empty", path).
			Component("vision").
			Category(errors.CategoryValidation).
			Build()
	}
	return labels, nil
}
