package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults and explicit values are preserved.
// Store-specific defaults beyond a data path are left to the stores.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	cfg.API.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyBlocksDefaults(&cfg.Blocks)
	applyMetadataDefaults(&cfg.Metadata)
	applyVaultDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

// applyBlocksDefaults sets block store defaults.
func applyBlocksDefaults(cfg *BlocksConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/tmp/dittovault-blocks"
	}
}

// applyMetadataDefaults sets metadata index defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/dittovault-index"
	}
}

func applyVaultDefaults(cfg *Config) {
	if cfg.Vault.ScanBatchSize == 0 {
		cfg.Vault.ScanBatchSize = 1000
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// Used to generate sample configuration files.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Blocks: BlocksConfig{
			Filesystem: make(map[string]any),
			S3: map[string]any{
				"region":      "us-east-1",
				"bucket":      "dittovault",
				"key_prefix":  "",
				"max_attempts": 1,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
