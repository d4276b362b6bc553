package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "info"

blocks:
  type: "memory"

metadata:
  type: "memory"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("Expected default api addr ':8080', got %q", cfg.API.Addr)
	}
	if cfg.Blocks.Type != "memory" {
		t.Errorf("Expected block store 'memory', got %q", cfg.Blocks.Type)
	}
	if cfg.Vault.ListUnfinalizedFiles {
		t.Error("Expected open files to be hidden from listings by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A path inside a temp dir keeps the user's own config out of the test
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Blocks.Type != "filesystem" {
		t.Errorf("Expected default block store 'filesystem', got %q", cfg.Blocks.Type)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected default metadata store 'badger', got %q", cfg.Metadata.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"
format = "json"

[api]
addr = ":8181"
default_page_size = 50

[blocks]
type = "memory"

[vault]
list_unfinalized_files = true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.API.Addr != ":8181" {
		t.Errorf("Expected api addr ':8181', got %q", cfg.API.Addr)
	}
	if cfg.API.DefaultPageSize != 50 {
		t.Errorf("Expected default_page_size 50, got %d", cfg.API.DefaultPageSize)
	}
	if !cfg.Vault.ListUnfinalizedFiles {
		t.Error("Expected list_unfinalized_files to be true")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: INFO
api:
  addr: ":8080"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("DITTOVAULT_LOGGING_LEVEL", "DEBUG")
	t.Setenv("DITTOVAULT_API_ADDR", ":7070")
	t.Setenv("DITTOVAULT_SERVER_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.API.Addr != ":7070" {
		t.Errorf("Expected env api addr ':7070', got %q", cfg.API.Addr)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected env shutdown_timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
blocks:
  type: "tape"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown block store type")
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := GetConfigDir(); dir != "/custom/config/dittovault" {
		t.Errorf("Expected '/custom/config/dittovault', got %q", dir)
	}
	if path := GetDefaultConfigPath(); path != "/custom/config/dittovault/config.yaml" {
		t.Errorf("Expected '/custom/config/dittovault/config.yaml', got %q", path)
	}
}
