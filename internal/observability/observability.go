// Package observability wires the Prometheus registry and per-component
// metric collections used across the pipeline.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfvision/shelfvision-go/internal/observability/metrics"
)

// Metrics aggregates the per-component metric collections behind one
// registry so the HTTP handler and all recorders share a single source.
type Metrics struct {
	Vision *metrics.VisionMetrics
	OCR    *metrics.OCRMetrics
	Cache  *metrics.CacheMetrics

	registry *prometheus.Registry
}

// NewMetrics creates a registry with process/go collectors and every
// pipeline metric collection registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	var err error
	if m.Vision, err = metrics.NewVisionMetrics(registry); err != nil {
		return nil, fmt.Errorf("creating vision metrics: %w", err)
	}
	if m.OCR, err = metrics.NewOCRMetrics(registry); err != nil {
		return nil, fmt.Errorf("creating ocr metrics: %w", err)
	}
	if m.Cache, err = metrics.NewCacheMetrics(registry); err != nil {
		return nil, fmt.Errorf("creating cache metrics: %w", err)
	}

	return m, nil
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
