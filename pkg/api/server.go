// Package api exposes a vault.Service over HTTP.
//
// Every route lives under /v1.0 and addresses a vault by its first path
// segment:
//
//	PUT    /v1.0/:vault                       create (idempotent)
//	HEAD   /v1.0/:vault                       exists
//	GET    /v1.0/:vault                       statistics
//	DELETE /v1.0/:vault                       delete (409 unless empty)
//	GET    /v1.0/:vault/blocks                list block ids
//	POST   /v1.0/:vault/blocks                bulk upload
//	PUT    /v1.0/:vault/blocks/:block         upload one block
//	GET    /v1.0/:vault/blocks/:block         download
//	HEAD   /v1.0/:vault/blocks/:block         exists
//	DELETE /v1.0/:vault/blocks/:block         delete (idempotent)
//	POST   /v1.0/:vault/files                 create file
//	GET    /v1.0/:vault/files                 list file ids
//	GET    /v1.0/:vault/files/:file           download a finalized file
//	POST   /v1.0/:vault/files/:file           assign blocks, or finalize on empty body
//	DELETE /v1.0/:vault/files/:file           delete file
//	GET    /v1.0/:vault/files/:file/blocks    list [block_id, offset] pairs
//
// With a rate limit configured each vault gets its own token bucket and
// excess requests are answered with 429.
//
// Authentication is left to a fronting proxy.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/vault"
)

// Config configures the HTTP API.
type Config struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`

	// DefaultPageSize applies to listings without a limit parameter.
	DefaultPageSize int `mapstructure:"default_page_size" yaml:"default_page_size" validate:"omitempty,min=1"`

	// MaxPageSize clamps the limit parameter.
	MaxPageSize int `mapstructure:"max_page_size" yaml:"max_page_size" validate:"omitempty,min=1"`

	// MaxBlockSize bounds a single block upload in bytes.
	MaxBlockSize int64 `mapstructure:"max_block_size" yaml:"max_block_size" validate:"omitempty,min=1"`

	// MaxBulkSize bounds a bulk upload request body in bytes.
	MaxBulkSize int64 `mapstructure:"max_bulk_size" yaml:"max_bulk_size" validate:"omitempty,min=1"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RateLimit throttles requests per vault. Zero disables it.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig sizes the per-vault token bucket.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DefaultPageSize == 0 {
		c.DefaultPageSize = 100
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = 1000
	}
	if c.MaxBlockSize == 0 {
		c.MaxBlockSize = 4 << 20
	}
	if c.MaxBulkSize == 0 {
		c.MaxBulkSize = 64 << 20
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 2 * c.RateLimit.RequestsPerSecond
	}
}

// Server serves the API until its context is cancelled.
type Server struct {
	server       *http.Server
	addr         string
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a stopped server for svc.
func NewServer(svc *vault.Service, config Config) *Server {
	config.ApplyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      NewHandler(svc, config),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		addr: config.Addr,
	}
}

// Name identifies the server in lifecycle logs.
func (s *Server) Name() string {
	return "api"
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api server failed: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("api server failed: %w", err)
	}
}

// Stop drains in-flight requests. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("api server shutdown error: %w", err)
			logger.Error("API server shutdown error: %v", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the bound address once listening, otherwise the configured
// one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
