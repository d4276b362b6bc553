package config

import (
	"github.com/marmos91/dittovault/pkg/metrics"
	blockS3 "github.com/marmos91/dittovault/pkg/store/block/s3"
	"github.com/marmos91/dittovault/pkg/vault"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// S3 instruments the S3 block store (nil if disabled)
	S3 blockS3.S3Metrics

	// Vault instruments the vault service (nil if disabled)
	Vault vault.Metrics
}

// InitializeMetrics creates the metrics components.
//
// When metrics are disabled every field is nil and components use their
// no-op implementations.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr}),
		S3:     metrics.NewS3Metrics(),
		Vault:  metrics.NewVaultMetrics(),
	}
}
