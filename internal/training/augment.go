// Package training implements the offline pipeline that turns a versioned
// image dataset into per-product reference vectors, with an accuracy gate
// guarding promotion.
package training

import (
	"image"
	"image/color"
)

// Mirror returns the horizontal mirror of an image. Bottles and cans keep
// their silhouette under mirroring, so this is a safe augmentation.
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(b.Dx()-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// AdjustBrightness shifts every channel by delta in [-1, 1], simulating
// the uneven bar lighting the recognizer sees in production.
func AdjustBrightness(img image.Image, delta float64) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	shift := int32(delta * 255)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Set(x, y, color.RGBA{
				R: clampChannel(int32(r>>8) + shift),
				G: clampChannel(int32(g>>8) + shift),
				B: clampChannel(int32(bl>>8) + shift),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func clampChannel(v int32) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// Augment produces up to n deterministic variants of a source image. The
// variant set is fixed, not sampled, so re-running training over the same
// dataset version embeds identical pixels.
func Augment(img image.Image, n int) []image.Image {
	variants := []image.Image{
		Mirror(img),
		AdjustBrightness(img, 0.15),
		AdjustBrightness(img, -0.15),
		AdjustBrightness(Mirror(img), 0.15),
	}
	if n < 0 {
		n = 0
	}
	if n > len(variants) {
		n = len(variants)
	}
	return variants[:n]
}
