package metrics

import (
	"time"

	"github.com/marmos91/dittovault/pkg/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vaultMetrics is the Prometheus implementation of vault.Metrics.
type vaultMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	dedupTotal        *prometheus.CounterVec
	finalizeTotal     *prometheus.CounterVec
	missingBlocks     prometheus.Histogram
}

// NewVaultMetrics creates a Prometheus-backed vault.Metrics on the global
// registry, or returns nil when metrics are disabled.
func NewVaultMetrics() vault.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newVaultMetrics(GetRegistry())
}

func newVaultMetrics(reg prometheus.Registerer) *vaultMetrics {
	return &vaultMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_operations_total",
				Help: "Total number of vault service operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittovault_operation_duration_seconds",
				Help:    "Duration of vault service operations in seconds",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		dedupTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_block_dedup_total",
				Help: "Stored blocks by whether their content was already present",
			},
			[]string{"result"}, // hit, miss
		),
		finalizeTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_finalize_total",
				Help: "Finalize attempts on open files by outcome",
			},
			[]string{"result"}, // finalized, missing_blocks
		),
		missingBlocks: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittovault_finalize_missing_blocks",
				Help:    "Number of missing blocks reported by rejected finalize attempts",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 .. 16384
			},
		),
	}
}

func (m *vaultMetrics) ObserveOperation(op string, d time.Duration, err error) {
	m.operationsTotal.WithLabelValues(op, status(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *vaultMetrics) RecordDedup(hit bool) {
	if hit {
		m.dedupTotal.WithLabelValues("hit").Inc()
		return
	}
	m.dedupTotal.WithLabelValues("miss").Inc()
}

func (m *vaultMetrics) RecordFinalize(missing int) {
	if missing == 0 {
		m.finalizeTotal.WithLabelValues("finalized").Inc()
		return
	}
	m.finalizeTotal.WithLabelValues("missing_blocks").Inc()
	m.missingBlocks.Observe(float64(missing))
}
