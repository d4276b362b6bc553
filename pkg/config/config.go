package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittovault/pkg/api"
	"github.com/marmos91/dittovault/pkg/vault"
	"github.com/spf13/viper"
)

// Config represents the complete dittovault configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOVAULT_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// Each store implementation defines its own options. The Blocks and
// Metadata sections hold one option map per store type and only the map
// matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// API configures the HTTP interface
	API api.Config `mapstructure:"api" yaml:"api"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Blocks selects and configures the block store
	Blocks BlocksConfig `mapstructure:"blocks" yaml:"blocks"`

	// Metadata selects and configures the metadata index
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Vault holds file assembly policy
	Vault vault.Config `mapstructure:"vault" yaml:"vault"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// MetricsConfig configures the metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns on collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the listen address of the metrics server
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// BlocksConfig specifies block store configuration.
type BlocksConfig struct {
	// Type specifies which block store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem options, used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// Memory options, used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// S3 options, used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// MetadataConfig specifies metadata index configuration.
type MetadataConfig struct {
	// Type specifies which index implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory options, used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger options, used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location. A missing file is
// not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and the config file search.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOVAULT_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/dittovault/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar keys that can be set from the environment alone.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"api.addr",
	"api.default_page_size",
	"api.max_page_size",
	"api.max_block_size",
	"api.rate_limit.requests_per_second",
	"api.rate_limit.burst",
	"metrics.enabled",
	"metrics.addr",
	"blocks.type",
	"metadata.type",
	"vault.list_unfinalized_files",
	"vault.scan_batch_size",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist surfaces as a PathError.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/dittovault, ~/.config/dittovault,
// or "." when the home directory is unknown.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittovault")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittovault")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
