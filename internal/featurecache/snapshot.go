package featurecache

import (
	"time"

	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/logging"
)

// Entry is one product's reference vector as loaded from the cache table.
type Entry struct {
	ProductID  string
	Vector     []float32
	ImageCount int
}

// Snapshot is an immutable in-memory view of the feature cache taken at
// load time. The matcher iterates it without touching the database.
type Snapshot struct {
	Entries  []Entry
	LoadedAt time.Time
}

// LoadSnapshot reads every cache row and decodes the vectors. Rows whose
// stored vector cannot be decoded at the expected dimension are skipped
// with a warning; a corrupt row must not take recognition down.
func LoadSnapshot(ds datastore.Interface, dim int) (*Snapshot, error) {
	rows, err := ds.GetAllFeatureCaches()
	if err != nil {
		return nil, err
	}

	log := logging.ForService("featurecache")
	snap := &Snapshot{
		Entries:  make([]Entry, 0, len(rows)),
		LoadedAt: time.Now(),
	}
	for i := range rows {
		vec, decErr := datastore.DecodeVectorDim(rows[i].Vector, dim)
		if decErr != nil {
			log.Warn("skipping unreadable feature cache row",
				"product_id", rows[i].ProductID,
				"error", decErr)
			continue
		}
		snap.Entries = append(snap.Entries, Entry{
			ProductID:  rows[i].ProductID,
			Vector:     vec,
			ImageCount: rows[i].ImageCount,
		})
	}
	return snap, nil
}
