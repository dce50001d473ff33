package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for a lookup run. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry         *prometheus.Registry
	BatchesTotal     *prometheus.CounterVec
	ComputersTotal   *prometheus.CounterVec
	PageReloadsTotal prometheus.Counter
	FallbacksTotal   prometheus.Counter
	BatchDuration    prometheus.Histogram
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	batches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warranty_batches_total",
			Help: "Batches submitted to the vendor form, by final status.",
		},
		[]string{"status"},
	)
	computers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warranty_computers_total",
			Help: "Computers processed, by lookup result.",
		},
		[]string{"result"},
	)
	reloads := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warranty_page_reloads_total",
			Help: "Page reloads triggered by the stuck-page marker.",
		},
	)
	fallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warranty_product_number_fallbacks_total",
			Help: "Batches that fell back to product-number identification.",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warranty_batch_duration_seconds",
			Help:    "Wall time spent processing one batch.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	registry.MustRegister(batches, computers, reloads, fallbacks, duration)

	return &Metrics{
		Registry:         registry,
		BatchesTotal:     batches,
		ComputersTotal:   computers,
		PageReloadsTotal: reloads,
		FallbacksTotal:   fallbacks,
		BatchDuration:    duration,
	}
}

// IncBatch counts a finished batch with the given status ("ok" or "failed").
func (m *Metrics) IncBatch(status string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(status).Inc()
}

// IncComputer counts a computer with its lookup result label.
func (m *Metrics) IncComputer(result string) {
	if m == nil {
		return
	}
	m.ComputersTotal.WithLabelValues(result).Inc()
}

// IncReload counts a stuck-page reload.
func (m *Metrics) IncReload() {
	if m == nil {
		return
	}
	m.PageReloadsTotal.Inc()
}

// IncFallback counts a product-number fallback.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.FallbacksTotal.Inc()
}

// ObserveBatch records how long one batch took.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(d.Seconds())
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
