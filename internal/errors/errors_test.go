package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedErrorCategory(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("embedding has 512 dims, want 1280")).
		Component("featurecache").
		Category(CategoryDegenerateVector).
		ProductContext("prod-42").
		Build()

	assert.Equal(t, "featurecache", err.GetComponent())
	assert.Equal(t, string(CategoryDegenerateVector), err.GetCategory())
	assert.True(t, IsCategory(err, CategoryDegenerateVector))
	assert.False(t, IsCategory(err, CategoryDatabase))

	ctx := err.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "prod-42", ctx["product_id"])
}

func TestEnhancedErrorUnwrap(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("model file missing")
	wrapped := New(fmt.Errorf("loading detector: %w", sentinel)).
		Category(CategoryModelLoad).
		Build()

	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, IsModelUnavailable(wrapped))
}

func TestDefaultCategoryIsGeneric(t *testing.T) {
	t.Parallel()

	err := Newf("boom").Build()
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
}
