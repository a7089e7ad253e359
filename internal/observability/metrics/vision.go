// Package metrics provides custom Prometheus metrics for the recognition pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VisionMetrics contains all Prometheus metrics related to detector and
// classifier inference.
type VisionMetrics struct {
	DetectionsTotal   *prometheus.CounterVec
	DetectionDuration *prometheus.HistogramVec
	EmbeddingDuration *prometheus.HistogramVec
	MatchesTotal      *prometheus.CounterVec
	ModelLoadTotal    *prometheus.CounterVec
	ModelLoadedGauge  *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewVisionMetrics creates a new instance of VisionMetrics and registers it
// with the provided registry.
func NewVisionMetrics(registry *prometheus.Registry) (*VisionMetrics, error) {
	m := &VisionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register vision metrics: %w", err)
	}
	return m, nil
}

func (m *VisionMetrics) initMetrics() {
	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfvision_detections_total",
			Help: "Total number of Stage-1 detections partitioned by object class.",
		},
		[]string{"class"},
	)
	m.DetectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfvision_detection_duration_seconds",
			Help:    "Stage-1 detector inference duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	m.EmbeddingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfvision_embedding_duration_seconds",
			Help:    "Stage-2 embedding extraction duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
	m.MatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfvision_matches_total",
			Help: "Classification outcomes partitioned by result.",
		},
		[]string{"result"},
	)
	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfvision_model_load_total",
			Help: "Model load attempts partitioned by model kind and status.",
		},
		[]string{"model", "status"},
	)
	m.ModelLoadedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfvision_model_loaded",
			Help: "Whether a model is currently loaded (1) or not (0).",
		},
		[]string{"model"},
	)
}

// Describe implements prometheus.Collector.
func (m *VisionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DetectionsTotal.Describe(ch)
	m.DetectionDuration.Describe(ch)
	m.EmbeddingDuration.Describe(ch)
	m.MatchesTotal.Describe(ch)
	m.ModelLoadTotal.Describe(ch)
	m.ModelLoadedGauge.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *VisionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DetectionsTotal.Collect(ch)
	m.DetectionDuration.Collect(ch)
	m.EmbeddingDuration.Collect(ch)
	m.MatchesTotal.Collect(ch)
	m.ModelLoadTotal.Collect(ch)
	m.ModelLoadedGauge.Collect(ch)
}

// RecordDetection increments the detection counter for a class. Safe on nil.
func (m *VisionMetrics) RecordDetection(class string) {
	if m == nil {
		return
	}
	m.DetectionsTotal.WithLabelValues(class).Inc()
}

// RecordDetectionDuration observes a detector run. Safe on nil.
func (m *VisionMetrics) RecordDetectionDuration(source string, seconds float64) {
	if m == nil {
		return
	}
	m.DetectionDuration.WithLabelValues(source).Observe(seconds)
}

// RecordEmbeddingDuration observes an embedding extraction. Safe on nil.
func (m *VisionMetrics) RecordEmbeddingDuration(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.EmbeddingDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordMatch increments the classification outcome counter. Safe on nil.
func (m *VisionMetrics) RecordMatch(result string) {
	if m == nil {
		return
	}
	m.MatchesTotal.WithLabelValues(result).Inc()
}

// RecordModelLoad tracks a model load attempt. Safe on nil.
func (m *VisionMetrics) RecordModelLoad(model string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	loaded := 1.0
	if !ok {
		status = "error"
		loaded = 0
	}
	m.ModelLoadTotal.WithLabelValues(model, status).Inc()
	m.ModelLoadedGauge.WithLabelValues(model).Set(loaded)
}
