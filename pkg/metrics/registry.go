// Package metrics provides Prometheus metrics for dittovault components.
//
// All metrics are optional. When the registry is not initialized the
// constructors return nil and components fall back to their built-in
// no-op implementations.
//
// Usage:
//
//	metrics.InitRegistry()
//
//	s3Metrics := metrics.NewS3Metrics()
//	svc := vault.New(store, index, cfg, metrics.NewVaultMetrics())
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry with the Go
// runtime and process collectors. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// durationBuckets covers single requests (milliseconds) up to large batches.
var durationBuckets = []float64{
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
	30.0,  // 30s
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
