package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/vault"
)

// Runnable is a listener managed by VaultServer (the HTTP API, the metrics
// endpoint).
//
// Start blocks until ctx is cancelled or the listener fails. Stop must be
// safe to call concurrently with Start and more than once.
type Runnable interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// VaultServer runs the listeners in front of one vault.Service and owns
// its shutdown: listeners stop first, then the service closes its stores.
type VaultServer struct {
	service         *vault.Service
	shutdownTimeout time.Duration

	runnables []Runnable

	mu        sync.Mutex
	serveOnce sync.Once
	served    bool
}

// New creates a VaultServer. A zero shutdownTimeout means 30 seconds.
func New(service *vault.Service, shutdownTimeout time.Duration) *VaultServer {
	if service == nil {
		panic("vault service cannot be nil")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &VaultServer{
		service:         service,
		shutdownTimeout: shutdownTimeout,
		runnables:       make([]Runnable, 0, 2),
	}
}

// Add registers a listener. It must be called before Serve.
func (s *VaultServer) Add(r Runnable) error {
	if r == nil {
		panic("runnable cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s after Serve", r.Name())
	}
	for _, existing := range s.runnables {
		if existing.Name() == r.Name() {
			return fmt.Errorf("%s already registered", r.Name())
		}
	}

	s.runnables = append(s.runnables, r)
	logger.Debug("Registered %s server", r.Name())
	return nil
}

// Serve starts every listener and blocks until ctx is cancelled or one of
// them fails. Either way all listeners are stopped and the service is
// closed before Serve returns. Serve may only be called once.
func (s *VaultServer) Serve(ctx context.Context) error {
	err := errors.New("Serve has already been called")
	s.serveOnce.Do(func() {
		err = s.serve(ctx)
	})
	return err
}

type runnableError struct {
	name string
	err  error
}

func (s *VaultServer) serve(ctx context.Context) error {
	s.mu.Lock()
	s.served = true
	runnables := make([]Runnable, len(s.runnables))
	copy(runnables, s.runnables)
	s.mu.Unlock()

	if len(runnables) == 0 {
		return fmt.Errorf("no servers registered; call Add before Serve")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan runnableError, len(runnables))
	var wg sync.WaitGroup

	for _, r := range runnables {
		wg.Add(1)
		go func(r Runnable) {
			defer wg.Done()
			logger.Info("Starting %s server", r.Name())
			if err := r.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) && runCtx.Err() == nil {
				logger.Error("%s server failed: %v", r.Name(), err)
				errChan <- runnableError{name: r.Name(), err: err}
				return
			}
			logger.Debug("%s server stopped", r.Name())
		}(r)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case re := <-errChan:
		logger.Error("%s server failed, shutting down: %v", re.name, re.err)
		serveErr = fmt.Errorf("%s server: %w", re.name, re.err)
	}

	cancel()
	s.stopAll(runnables)
	wg.Wait()

	if err := s.service.Close(); err != nil {
		logger.Error("Closing stores: %v", err)
		if serveErr == nil {
			serveErr = fmt.Errorf("close stores: %w", err)
		}
	}

	logger.Info("dittovault stopped")
	return serveErr
}

// stopAll stops listeners in reverse registration order.
func (s *VaultServer) stopAll(runnables []Runnable) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(runnables) - 1; i >= 0; i-- {
		if err := runnables[i].Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s server: %v", runnables[i].Name(), err)
		}
	}
}
