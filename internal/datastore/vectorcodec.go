package datastore

import (
	"encoding/binary"
	"math"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Stored embeddings use a fixed-schema binary layout: a little-endian
// uint32 element count followed by that many little-endian float32 values.
// Nothing else is ever accepted; there is deliberately no generic object
// decoding on this path.

const vectorHeaderSize = 4

// EncodeVector serializes a float32 vector into the length-prefixed layout.
func EncodeVector(vec []float32) []byte {
	out := make([]byte, vectorHeaderSize+4*len(vec))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(vec))) //nolint:gosec // G115: embedding sizes are far below uint32 range
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[vectorHeaderSize+4*i:], math.Float32bits(v))
	}
	return out
}

// DecodeVector parses a length-prefixed float32 vector. It rejects
// truncated or padded payloads.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < vectorHeaderSize {
		return nil, errors.Newf("vector payload too short: %d bytes", len(data)).
			Component("datastore").
			Category(errors.CategoryDegenerateVector).
			Build()
	}

	count := binary.LittleEndian.Uint32(data[0:4])
	want := vectorHeaderSize + 4*int(count)
	if len(data) != want {
		return nil, errors.Newf("vector payload length mismatch: header says %d elements (%d bytes), have %d bytes", count, want, len(data)).
			Component("datastore").
			Category(errors.CategoryDegenerateVector).
			Build()
	}

	vec := make([]float32, count)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[vectorHeaderSize+4*i:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// DecodeVectorDim parses a vector and additionally enforces the
// pipeline-wide embedding dimensionality.
func DecodeVectorDim(data []byte, wantDim int) ([]float32, error) {
	vec, err := DecodeVector(data)
	if err != nil {
		return nil, err
	}
	if len(vec) != wantDim {
		return nil, errors.Newf("vector has %d dimensions, want %d", len(vec), wantDim).
			Component("datastore").
			Category(errors.CategoryDegenerateVector).
			Context("got_dim", len(vec)).
			Context("want_dim", wantDim).
			Build()
	}
	return vec, nil
}
