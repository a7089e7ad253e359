package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics contains Prometheus metrics for feature cache rebuilds.
type CacheMetrics struct {
	RebuildTotal    *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	SkippedVectors  prometheus.Counter
	CachedProducts  prometheus.Gauge

	registry *prometheus.Registry
}

// NewCacheMetrics creates a new instance of CacheMetrics.
func NewCacheMetrics(registry *prometheus.Registry) (*CacheMetrics, error) {
	m := &CacheMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register cache metrics: %w", err)
	}
	return m, nil
}

func (m *CacheMetrics) initMetrics() {
	m.RebuildTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfvision_cache_rebuild_total",
			Help: "Feature cache rebuilds partitioned by outcome.",
		},
		[]string{"status"},
	)
	m.RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfvision_cache_rebuild_duration_seconds",
			Help:    "Per-product feature cache rebuild duration.",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.SkippedVectors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfvision_cache_skipped_vectors_total",
			Help: "Stored vectors excluded from aggregation as unreadable or mismatched.",
		},
	)
	m.CachedProducts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfvision_cache_products",
			Help: "Number of products with a feature cache row.",
		},
	)
}

// Describe implements prometheus.Collector.
func (m *CacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RebuildTotal.Describe(ch)
	m.RebuildDuration.Describe(ch)
	m.SkippedVectors.Describe(ch)
	m.CachedProducts.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *CacheMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RebuildTotal.Collect(ch)
	m.RebuildDuration.Collect(ch)
	m.SkippedVectors.Collect(ch)
	m.CachedProducts.Collect(ch)
}

// RecordRebuild tracks one per-product rebuild. Safe on nil.
func (m *CacheMetrics) RecordRebuild(status string, seconds float64) {
	if m == nil {
		return
	}
	m.RebuildTotal.WithLabelValues(status).Inc()
	m.RebuildDuration.Observe(seconds)
}

// RecordSkippedVector counts one vector excluded from aggregation. Safe on nil.
func (m *CacheMetrics) RecordSkippedVector() {
	if m == nil {
		return
	}
	m.SkippedVectors.Inc()
}

// SetCachedProducts updates the cached-products gauge. Safe on nil.
func (m *CacheMetrics) SetCachedProducts(n int) {
	if m == nil {
		return
	}
	m.CachedProducts.Set(float64(n))
}
