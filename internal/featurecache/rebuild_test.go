package featurecache

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) datastore.Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func saveVector(t *testing.T, store datastore.Interface, productID string, vec []float32) {
	t.Helper()
	require.NoError(t, store.SaveTrainingImage(&datastore.TrainingImage{
		ProductID: productID,
		Vector:    datastore.EncodeVector(vec),
		Source:    "upload",
	}))
}

func TestRebuildWritesUnitVector(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	saveVector(t, store, "prod-1", []float32{1, 0, 0})
	saveVector(t, store, "prod-1", []float32{0, 1, 0})

	r := NewRebuilder(store, 3, nil)
	require.NoError(t, r.Rebuild(context.Background(), "prod-1"))

	row, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)
	assert.Equal(t, 2, row.ImageCount)

	vec, err := datastore.DecodeVectorDim(row.Vector, 3)
	require.NoError(t, err)
	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestRebuildIsRepeatable(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	for _, v := range [][]float32{
		{0.5, 0.1}, {0.4, 0.2}, {0.55, 0.15}, {0.45, 0.12}, {0.9, 0.9},
	} {
		saveVector(t, store, "prod-1", v)
	}

	r := NewRebuilder(store, 2, nil)
	require.NoError(t, r.Rebuild(context.Background(), "prod-1"))
	first, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)

	require.NoError(t, r.Rebuild(context.Background(), "prod-1"))
	second, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector, "rebuild over unchanged images must be bit-identical")
}

func TestRebuildIgnoresInsertionOrder(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	// Same vector set, opposite insertion order. Enough vectors to engage
	// the outlier trim, where input order matters most.
	vecs := [][]float32{
		{0.5, 0.1}, {0.4, 0.2}, {0.55, 0.15}, {0.45, 0.12}, {0.9, 0.9},
	}
	for _, v := range vecs {
		saveVector(t, store, "prod-fwd", v)
	}
	for i := len(vecs) - 1; i >= 0; i-- {
		saveVector(t, store, "prod-rev", vecs[i])
	}

	r := NewRebuilder(store, 2, nil)
	require.NoError(t, r.Rebuild(context.Background(), "prod-fwd"))
	require.NoError(t, r.Rebuild(context.Background(), "prod-rev"))

	fwd, err := store.GetFeatureCache("prod-fwd")
	require.NoError(t, err)
	rev, err := store.GetFeatureCache("prod-rev")
	require.NoError(t, err)
	assert.Equal(t, fwd.Vector, rev.Vector,
		"the cache row is a function of the vector set, not its history")
	assert.Equal(t, fwd.ImageCount, rev.ImageCount)
}

func TestRebuildSkipsUnreadableVectors(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	saveVector(t, store, "prod-1", []float32{1, 0})
	require.NoError(t, store.SaveTrainingImage(&datastore.TrainingImage{
		ProductID: "prod-1",
		Vector:    []byte{0xde, 0xad},
		Source:    "upload",
	}))

	r := NewRebuilder(store, 2, nil)
	require.NoError(t, r.Rebuild(context.Background(), "prod-1"))

	row, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, row.ImageCount, "only the decodable vector counts")
}

func TestRebuildClearsCacheWhenNoUsableVectors(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	saveVector(t, store, "prod-1", []float32{1, 0})

	r := NewRebuilder(store, 2, nil)
	require.NoError(t, r.Rebuild(context.Background(), "prod-1"))
	_, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)

	// The only image becomes unreadable at the expected dimension.
	imgs, err := store.GetTrainingImagesByProduct("prod-1")
	require.NoError(t, err)
	require.NoError(t, store.DeleteTrainingImage(imgs[0].ID))
	require.NoError(t, store.SaveTrainingImage(&datastore.TrainingImage{
		ProductID: "prod-1",
		Vector:    datastore.EncodeVector([]float32{1, 0, 0}),
		Source:    "upload",
	}))

	require.NoError(t, r.Rebuild(context.Background(), "prod-1"))
	_, err = store.GetFeatureCache("prod-1")
	assert.True(t, errors.IsNotFound(err), "stale cache row must be deleted")
}

func TestRebuildDegenerateLeavesNoRow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	saveVector(t, store, "prod-1", []float32{1, 0})
	saveVector(t, store, "prod-1", []float32{-1, 0})

	r := NewRebuilder(store, 2, nil)
	err := r.Rebuild(context.Background(), "prod-1")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDegenerateVector))

	_, err = store.GetFeatureCache("prod-1")
	assert.True(t, errors.IsNotFound(err))
}

func TestRebuildAll(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	saveVector(t, store, "prod-a", []float32{1, 0})
	saveVector(t, store, "prod-b", []float32{0, 1})
	saveVector(t, store, "prod-c", []float32{0.5, 0.5})

	r := NewRebuilder(store, 2, nil)
	require.NoError(t, r.RebuildAll(context.Background(), 2))

	rows, err := store.GetAllFeatureCaches()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRebuildAllCollectsFailures(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	saveVector(t, store, "prod-ok", []float32{1, 0})
	// Degenerate product fails, the healthy one must still rebuild.
	saveVector(t, store, "prod-bad", []float32{1, 0})
	saveVector(t, store, "prod-bad", []float32{-1, 0})

	r := NewRebuilder(store, 2, nil)
	err := r.RebuildAll(context.Background(), 4)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDegenerateVector))

	_, err = store.GetFeatureCache("prod-ok")
	assert.NoError(t, err)
}

func TestLoadSnapshotSkipsCorruptRows(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	require.NoError(t, store.ReplaceFeatureCache(&datastore.ProductFeatureCache{
		ProductID:  "prod-good",
		Vector:     datastore.EncodeVector([]float32{1, 0}),
		ImageCount: 3,
	}))
	require.NoError(t, store.ReplaceFeatureCache(&datastore.ProductFeatureCache{
		ProductID:  "prod-corrupt",
		Vector:     []byte{0x01},
		ImageCount: 1,
	}))

	snap, err := LoadSnapshot(store, 2)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "prod-good", snap.Entries[0].ProductID)
	assert.Equal(t, []float32{1, 0}, snap.Entries[0].Vector)
}
