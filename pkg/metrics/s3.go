package metrics

import (
	"time"

	"github.com/marmos91/dittovault/pkg/store/block/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// s3Metrics is the Prometheus implementation of s3.S3Metrics.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	batchesTotal      *prometheus.CounterVec
	batchSize         *prometheus.HistogramVec
	batchFailures     *prometheus.CounterVec
	batchDuration     *prometheus.HistogramVec
}

// NewS3Metrics creates a Prometheus-backed s3.S3Metrics on the global
// registry.
//
// Returns nil if metrics are not enabled, which makes the S3 block store
// use its no-op implementation.
func NewS3Metrics() s3.S3Metrics {
	if !IsEnabled() {
		return nil
	}
	return newS3Metrics(GetRegistry())
}

func newS3Metrics(reg prometheus.Registerer) *s3Metrics {
	return &s3Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_s3_operations_total",
				Help: "Total number of S3 requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittovault_s3_operation_duration_seconds",
				Help:    "Duration of single S3 requests in seconds",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_s3_bytes_transferred_total",
				Help: "Total bytes transferred to and from S3",
			},
			[]string{"operation"},
		),
		batchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_s3_batches_total",
				Help: "Total number of coordinated S3 batches by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		batchSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittovault_s3_batch_size",
				Help:    "Number of requests per coordinated S3 batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
			},
			[]string{"operation"},
		),
		batchFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovault_s3_batch_failed_requests_total",
				Help: "Total number of failed requests inside coordinated S3 batches",
			},
			[]string{"operation"},
		),
		batchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittovault_s3_batch_duration_seconds",
				Help:    "Wall time of coordinated S3 batches in seconds",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}

func (m *s3Metrics) ObserveBatch(operation string, size, failed int, duration time.Duration) {
	outcome := "created"
	if failed > 0 {
		outcome = "failed"
	}
	m.batchesTotal.WithLabelValues(operation, outcome).Inc()
	m.batchSize.WithLabelValues(operation).Observe(float64(size))
	m.batchFailures.WithLabelValues(operation).Add(float64(failed))
	m.batchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
