package featurecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/logging"
	"github.com/shelfvision/shelfvision-go/internal/observability/metrics"
)

// Rebuilder recomputes per-product feature cache rows from stored training
// images. Rebuilds for the same product are serialized; rebuilds for
// different products run concurrently.
type Rebuilder struct {
	ds      datastore.Interface
	dim     int
	log     *slog.Logger
	metrics *metrics.CacheMetrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRebuilder creates a Rebuilder. dim is the expected embedding
// dimension; stored vectors that do not match it are skipped with a
// warning instead of poisoning the aggregate.
func NewRebuilder(ds datastore.Interface, dim int, cacheMetrics *metrics.CacheMetrics) *Rebuilder {
	return &Rebuilder{
		ds:      ds,
		dim:     dim,
		log:     logging.ForService("featurecache"),
		metrics: cacheMetrics,
		locks:   make(map[string]*sync.Mutex),
	}
}

// productLock returns the mutex serializing rebuilds for one product.
func (r *Rebuilder) productLock(productID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[productID] = l
	}
	return l
}

// Rebuild recomputes the cache row for one product and swaps it in
// atomically. If the product has no decodable vectors left, the stale row
// is deleted so matching cannot hit it.
func (r *Rebuilder) Rebuild(ctx context.Context, productID string) error {
	if productID == "" {
		return errors.Newf("rebuild requires a product id").
			Component("featurecache").
			Category(errors.CategoryValidation).
			Build()
	}

	lock := r.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("featurecache").
			Category(errors.CategoryCancellation).
			ProductContext(productID).
			Build()
	}

	start := time.Now()
	images, err := r.ds.GetTrainingImagesByProduct(productID)
	if err != nil {
		r.metrics.RecordRebuild("error", time.Since(start).Seconds())
		return err
	}

	vectors := make([][]float32, 0, len(images))
	for i := range images {
		vec, decErr := datastore.DecodeVectorDim(images[i].Vector, r.dim)
		if decErr != nil {
			r.log.Warn("skipping unreadable training vector",
				"product_id", productID,
				"training_image_id", images[i].ID,
				"error", decErr)
			r.metrics.RecordSkippedVector()
			continue
		}
		vectors = append(vectors, vec)
	}

	// Rows come back in insertion order; deleting and re-adding the same
	// vectors would shift it. Canonical order keeps the cache row a pure
	// function of the vector set.
	SortVectors(vectors)

	if len(vectors) == 0 {
		if err := r.ds.DeleteFeatureCache(productID); err != nil {
			r.metrics.RecordRebuild("error", time.Since(start).Seconds())
			return err
		}
		r.log.Info("feature cache cleared, product has no usable vectors",
			"product_id", productID,
			"image_count", len(images))
		r.metrics.RecordRebuild("cleared", time.Since(start).Seconds())
		return nil
	}

	agg, err := Aggregate(vectors)
	if err != nil {
		r.metrics.RecordRebuild("error", time.Since(start).Seconds())
		return err
	}
	if agg.Degenerate {
		r.metrics.RecordRebuild("degenerate", time.Since(start).Seconds())
		return errors.Newf("aggregated vector for product %s is degenerate", productID).
			Component("featurecache").
			Category(errors.CategoryDegenerateVector).
			ProductContext(productID).
			Context("inliers", agg.InlierCount).
			Build()
	}

	row := &datastore.ProductFeatureCache{
		ProductID:  productID,
		Vector:     datastore.EncodeVector(agg.Vector),
		ImageCount: agg.InlierCount,
	}
	if err := r.ds.ReplaceFeatureCache(row); err != nil {
		r.metrics.RecordRebuild("error", time.Since(start).Seconds())
		return err
	}

	r.log.Info("feature cache rebuilt",
		"product_id", productID,
		"inliers", agg.InlierCount,
		"trimmed", agg.TrimmedCount,
		"duration_ms", time.Since(start).Milliseconds())
	r.metrics.RecordRebuild("success", time.Since(start).Seconds())
	return nil
}

// RebuildAll rebuilds every product that has training images, bounded to
// the given concurrency. A failed product does not stop the others; all
// failures are joined into the returned error.
func (r *Rebuilder) RebuildAll(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	productIDs, err := r.ds.ProductIDsWithTrainingImages()
	if err != nil {
		return err
	}

	var (
		failMu   sync.Mutex
		failures []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, pid := range productIDs {
		pid := pid
		g.Go(func() error {
			if err := r.Rebuild(ctx, pid); err != nil {
				failMu.Lock()
				failures = append(failures, err)
				failMu.Unlock()
			}
			// Errors are collected, not returned, so one bad product
			// cannot cancel the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info("bulk feature cache rebuild finished",
		"products", len(productIDs),
		"failures", len(failures))

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}
