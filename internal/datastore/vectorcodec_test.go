package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	t.Parallel()

	vec := []float32{0.5, -1.25, 3e-7, 0}
	decoded, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeVectorRejectsTruncatedPayload(t *testing.T) {
	t.Parallel()

	data := EncodeVector([]float32{1, 2, 3})
	_, err := DecodeVector(data[:len(data)-2])
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDegenerateVector))
}

func TestDecodeVectorRejectsPaddedPayload(t *testing.T) {
	t.Parallel()

	data := append(EncodeVector([]float32{1, 2}), 0xFF)
	_, err := DecodeVector(data)
	assert.Error(t, err)
}

func TestDecodeVectorDimMismatch(t *testing.T) {
	t.Parallel()

	data := EncodeVector(make([]float32, 512))
	_, err := DecodeVectorDim(data, 1280)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDegenerateVector))

	vec, err := DecodeVectorDim(data, 512)
	require.NoError(t, err)
	assert.Len(t, vec, 512)
}
