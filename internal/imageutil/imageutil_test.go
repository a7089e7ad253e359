package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(8, 8, color.RGBA{R: 255, A: 255})))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestCropClampsToBounds(t *testing.T) {
	t.Parallel()

	img := solidImage(10, 10, color.White)
	crop := Crop(img, image.Rect(5, 5, 50, 50))
	assert.Equal(t, 5, crop.Bounds().Dx())
	assert.Equal(t, 5, crop.Bounds().Dy())

	// Fully out-of-bounds boxes degrade to a 1x1 crop.
	crop = Crop(img, image.Rect(100, 100, 200, 200))
	assert.False(t, crop.Bounds().Empty())
}

func TestToTensorShapeAndRange(t *testing.T) {
	t.Parallel()

	tensor := ToTensor(solidImage(13, 7, color.RGBA{R: 255, A: 255}), 32)
	require.Len(t, tensor, 32*32*3)

	for i, v := range tensor {
		require.GreaterOrEqual(t, v, float32(0), "index %d", i)
		require.LessOrEqual(t, v, float32(1), "index %d", i)
	}
	// Red channel of a solid red image stays saturated after resize.
	assert.InDelta(t, 1.0, float64(tensor[0]), 0.02)
	assert.InDelta(t, 0.0, float64(tensor[1]), 0.02)
}

func TestColorDescriptorNormalized(t *testing.T) {
	t.Parallel()

	hist := ColorDescriptor(solidImage(16, 16, color.RGBA{B: 255, A: 255}))
	require.Len(t, hist, 64)

	var sum float32
	for _, v := range hist {
		sum += v
	}
	assert.InDelta(t, 1.0, float64(sum), 1e-5)
}
