package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// OCRMetrics contains Prometheus metrics for the text-assist matcher.
type OCRMetrics struct {
	RequestsTotal  *prometheus.CounterVec
	Duration       prometheus.Histogram
	TextMatchScore prometheus.Histogram

	registry *prometheus.Registry
}

// NewOCRMetrics creates a new instance of OCRMetrics.
func NewOCRMetrics(registry *prometheus.Registry) (*OCRMetrics, error) {
	m := &OCRMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ocr metrics: %w", err)
	}
	return m, nil
}

func (m *OCRMetrics) initMetrics() {
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfvision_ocr_requests_total",
			Help: "OCR extraction attempts partitioned by status.",
		},
		[]string{"status"},
	)
	m.Duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfvision_ocr_duration_seconds",
			Help:    "OCR extraction duration.",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.TextMatchScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfvision_ocr_text_match_score",
			Help:    "Distribution of fuzzy dictionary match scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
}

// Describe implements prometheus.Collector.
func (m *OCRMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	m.Duration.Describe(ch)
	m.TextMatchScore.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *OCRMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	m.Duration.Collect(ch)
	m.TextMatchScore.Collect(ch)
}

// RecordRequest tracks one OCR attempt. Safe on nil.
func (m *OCRMetrics) RecordRequest(status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(status).Inc()
	m.Duration.Observe(seconds)
}

// RecordTextMatchScore observes a dictionary match score. Safe on nil.
func (m *OCRMetrics) RecordTextMatchScore(score float64) {
	if m == nil {
		return
	}
	m.TextMatchScore.Observe(score)
}
