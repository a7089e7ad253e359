package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// newTestStore opens an in-memory SQLite store with migrated schema.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTrainingImageLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	img := &TrainingImage{
		ProductID:  "prod-1",
		Vector:     EncodeVector([]float32{1, 0, 0}),
		Confidence: 0.9,
		Source:     "upload",
	}
	require.NoError(t, store.SaveTrainingImage(img))
	require.NotZero(t, img.ID)

	got, err := store.GetTrainingImage(img.ID)
	require.NoError(t, err)
	assert.Equal(t, "prod-1", got.ProductID)
	assert.False(t, got.Verified)

	require.NoError(t, store.SetTrainingImageVerified(img.ID, true))
	got, err = store.GetTrainingImage(img.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	require.NoError(t, store.DeleteTrainingImage(img.ID))
	_, err = store.GetTrainingImage(img.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestSaveTrainingImageRequiresProduct(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	err := store.SaveTrainingImage(&TrainingImage{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestProductIDsWithTrainingImages(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	for _, pid := range []string{"b", "a", "b"} {
		require.NoError(t, store.SaveTrainingImage(&TrainingImage{ProductID: pid}))
	}

	ids, err := store.ProductIDsWithTrainingImages()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestReplaceFeatureCacheSwapsRow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first := &ProductFeatureCache{
		ProductID:  "prod-1",
		Vector:     EncodeVector([]float32{1, 0}),
		ImageCount: 2,
	}
	require.NoError(t, store.ReplaceFeatureCache(first))

	second := &ProductFeatureCache{
		ProductID:  "prod-1",
		Vector:     EncodeVector([]float32{0, 1}),
		ImageCount: 5,
	}
	require.NoError(t, store.ReplaceFeatureCache(second))

	rows, err := store.GetAllFeatureCaches()
	require.NoError(t, err)
	require.Len(t, rows, 1, "replace must never leave two rows for one product")
	assert.Equal(t, 5, rows[0].ImageCount)

	got, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)
	vec, err := DecodeVector(got.Vector)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestDeleteFeatureCacheIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.DeleteFeatureCache("missing"))

	require.NoError(t, store.ReplaceFeatureCache(&ProductFeatureCache{
		ProductID: "prod-1",
		Vector:    EncodeVector([]float32{1}),
	}))
	require.NoError(t, store.DeleteFeatureCache("prod-1"))
	require.NoError(t, store.DeleteFeatureCache("prod-1"))

	_, err := store.GetFeatureCache("prod-1")
	assert.True(t, errors.IsNotFound(err))
}
