package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittovault Configuration File
#
# Every key can be overridden from the environment with the DITTOVAULT_
# prefix, dots replaced by underscores (DITTOVAULT_LOGGING_LEVEL=DEBUG).
`

// sectionComments are written above each top-level key.
var sectionComments = map[string]string{
	"logging":  "Logging: level DEBUG|INFO|WARN|ERROR, format text|json, output stdout|stderr|<path>",
	"server":   "Process lifecycle",
	"api":      "HTTP API listener and request limits",
	"metrics":  "Prometheus endpoint (/metrics, /healthz)",
	"blocks":   "Block store: filesystem, memory or s3. Only the section matching type is read.",
	"metadata": "Metadata index: memory or badger. Only the section matching type is read.",
	"vault":    "File assembly policy",
}

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating
// parent directories.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with the file header and a
// comment above each section.
func generateYAMLWithComments(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.MappingNode {
		// Content alternates key and value nodes.
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
