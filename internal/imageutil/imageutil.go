// Package imageutil provides image decode, crop and tensor conversion helpers
// shared by the detector and classifier.
package imageutil

import (
	"bytes"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Decode decodes raw image bytes into an image.Image.
func Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("imageutil").
			Category(errors.CategoryImageDecode).
			Context("bytes", len(data)).
			Build()
	}
	_ = format
	return img, nil
}

// EncodeJPEG encodes an image as JPEG bytes, used when handing crops to
// the OCR engine and when persisting uploaded photos.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.New(err).
			Component("imageutil").
			Category(errors.CategoryImageDecode).
			Build()
	}
	return buf.Bytes(), nil
}

// Crop returns the sub-image of img bounded by rect, clamped to the image
// bounds. An empty intersection returns a 1x1 image rather than an error so
// malformed boxes degrade to a harmless crop.
func Crop(img image.Image, rect image.Rectangle) image.Image {
	bounds := img.Bounds()
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		rect = image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+1, bounds.Min.Y+1).Intersect(bounds)
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// Resize scales img to size x size pixels with bilinear interpolation.
func Resize(img image.Image, size int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Over, nil)
	return out
}

// ToTensor converts an image to a float32 slice in NHWC order with shape
// (1, size, size, 3), scaling pixel values into the 0-1 range. The image is
// resized to size x size first.
func ToTensor(img image.Image, size int) []float32 {
	resized := Resize(img, size)

	out := make([]float32, 1*size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r32, g32, b32, _ := resized.At(x, y).RGBA()
			// Convert 16-bit color to 8-bit
			r := float32(r32 >> 8)
			g := float32(g32 >> 8)
			b := float32(b32 >> 8)

			base := ((y * size) + x) * 3
			out[base+0] = r / 255.0
			out[base+1] = g / 255.0
			out[base+2] = b / 255.0
		}
	}
	return out
}

// ColorDescriptor computes a coarse 4x4x4 RGB histogram over the image,
// normalized to sum to 1. It is stored alongside the embedding as an
// auxiliary appearance signal.
func ColorDescriptor(img image.Image) []float32 {
	const bins = 4
	hist := make([]float32, bins*bins*bins)

	bounds := img.Bounds()
	total := float32(bounds.Dx() * bounds.Dy())
	if total == 0 {
		return hist
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r32, g32, b32, _ := img.At(x, y).RGBA()
			r := int(r32>>8) * bins / 256
			g := int(g32>>8) * bins / 256
			b := int(b32>>8) * bins / 256
			hist[r*bins*bins+g*bins+b]++
		}
	}
	for i := range hist {
		hist[i] /= total
	}
	return hist
}
