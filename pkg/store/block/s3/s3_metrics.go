// Package s3 implements block storage on Amazon S3 or S3-compatible
// services.
//
// This file contains metrics-related types for observability of S3
// operations.
package s3

import (
	"io"
	"time"
)

// S3Metrics provides observability for S3 operations.
//
// This is optional; if not provided, metrics collection is skipped. The
// Prometheus implementation lives in pkg/metrics.
type S3Metrics interface {
	// ObserveOperation records a single S3 request with its duration and
	// outcome. operation is one of "PutObject", "GetObject", "HeadObject",
	// "DeleteObject", "ListObjectsV2".
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred for read/write operations.
	RecordBytes(operation string, bytes int64)

	// ObserveBatch records a coordinated fan-out: how many requests it
	// carried, how many failed and how long the whole batch took.
	ObserveBatch(operation string, size, failed int, duration time.Duration)
}

// noopMetrics is the default no-op metrics implementation
type noopMetrics struct{}

func (noopMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordBytes(operation string, bytes int64)                            {}
func (noopMetrics) ObserveBatch(operation string, size, failed int, duration time.Duration) {
}

// metricsReadCloser wraps an io.ReadCloser to track bytes read.
//
// onClose runs after the wrapped body is closed; the coordinator uses it to
// release the per-request timeout context.
type metricsReadCloser struct {
	io.ReadCloser
	metrics   S3Metrics
	operation string
	bytesRead int64
	onClose   func()
}

func (m *metricsReadCloser) Read(p []byte) (n int, err error) {
	n, err = m.ReadCloser.Read(p)
	if n > 0 {
		m.bytesRead += int64(n)
	}
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.ReadCloser.Close()
	// Record bytes read regardless of close error
	if m.bytesRead > 0 {
		m.metrics.RecordBytes(m.operation, m.bytesRead)
	}
	if m.onClose != nil {
		m.onClose()
		m.onClose = nil
	}
	return err
}
