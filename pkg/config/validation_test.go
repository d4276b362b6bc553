package config

import (
	"strings"
	"testing"
)

func TestValidate_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid, got: %v", err)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "InvalidLogLevel",
			mutate:  func(c *Config) { c.Logging.Level = "LOUD" },
			wantErr: "Level",
		},
		{
			name:    "InvalidLogFormat",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "UnknownBlockStore",
			mutate:  func(c *Config) { c.Blocks.Type = "tape" },
			wantErr: "Type",
		},
		{
			name:    "UnknownMetadataStore",
			mutate:  func(c *Config) { c.Metadata.Type = "sqlite" },
			wantErr: "Type",
		},
		{
			name:    "ZeroShutdownTimeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name:    "NegativePageSize",
			mutate:  func(c *Config) { c.API.MaxPageSize = -1 },
			wantErr: "MaxPageSize",
		},
		{
			name: "MetricsAddrClash",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Addr = c.API.Addr
			},
			wantErr: "already used",
		},
		{
			name: "DefaultPageAboveMax",
			mutate: func(c *Config) {
				c.API.DefaultPageSize = 500
				c.API.MaxPageSize = 100
			},
			wantErr: "exceeds max_page_size",
		},
		{
			name: "S3WithoutBucket",
			mutate: func(c *Config) {
				c.Blocks.Type = "s3"
				c.Blocks.S3 = map[string]any{"region": "us-east-1"}
			},
			wantErr: "bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_LowercaseLevelAccepted(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to validate, got: %v", err)
	}
}
