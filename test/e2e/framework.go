// Package e2e drives a dittovault stack built from a configuration file,
// the same way the serve command builds it, over real HTTP.
package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittovault/pkg/api"
	"github.com/marmos91/dittovault/pkg/config"
	"github.com/marmos91/dittovault/pkg/vault"
)

// Stack is a running server backed by persistent stores under a temp dir.
type Stack struct {
	t          *testing.T
	configPath string

	svc    *vault.Service
	server *httptest.Server
}

// NewStack writes a filesystem + badger configuration and starts a server.
func NewStack(t *testing.T) *Stack {
	t.Helper()
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`logging:
  level: ERROR
api:
  default_page_size: 2
blocks:
  type: filesystem
  filesystem:
    path: %q
metadata:
  type: badger
  badger:
    db_path: %q
`, filepath.Join(dir, "blocks"), filepath.Join(dir, "index"))
	if err := os.WriteFile(configPath, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	s := &Stack{t: t, configPath: configPath}
	s.start()
	t.Cleanup(s.stop)
	return s
}

// URL returns the base URL of vault id.
func (s *Stack) URL(vaultID string) string {
	return s.server.URL + "/v1.0/" + vaultID
}

// Restart stops the server, closes both stores and builds everything again
// from the same configuration file.
func (s *Stack) Restart() {
	s.t.Helper()
	s.stop()
	s.start()
}

func (s *Stack) start() {
	s.t.Helper()
	ctx := context.Background()

	cfg, err := config.Load(s.configPath)
	if err != nil {
		s.t.Fatalf("Failed to load config: %v", err)
	}

	blocks, err := config.CreateBlockStore(ctx, &cfg.Blocks, nil)
	if err != nil {
		s.t.Fatalf("Failed to create block store: %v", err)
	}
	index, err := config.CreateMetadataIndex(ctx, &cfg.Metadata)
	if err != nil {
		_ = blocks.Close()
		s.t.Fatalf("Failed to create metadata index: %v", err)
	}

	s.svc = vault.New(blocks, index, cfg.Vault, nil)
	s.server = httptest.NewServer(api.NewHandler(s.svc, cfg.API))
}

func (s *Stack) stop() {
	if s.server == nil {
		return
	}
	s.server.Close()
	if err := s.svc.Close(); err != nil {
		s.t.Errorf("Failed to close service: %v", err)
	}
	s.server, s.svc = nil, nil
}
