// Package app wires configuration, stores, the gate, and the HTTP listeners
// into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"rategate/internal/config"
	"rategate/internal/gate"
	"rategate/internal/storage"
)

// Server represents the rategate service
type Server struct {
	config     *config.Config
	configPath string
	gate       *gate.Gate
	store      storage.WindowStore
	recorder   *gate.Recorder
	public     *http.Server
	admin      *http.Server
	watcher    *config.Watcher
	logger     *slog.Logger
}

// NewServer creates a new rategate server
func NewServer(cfg *config.Config, configPath string, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, logger).WithConfigPath(configPath).Build()
}

// Start binds the listeners and begins serving. It is non-blocking; the
// server runs until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.serve(s.public, "authorize"); err != nil {
		return err
	}

	if s.admin != nil {
		if err := s.serve(s.admin, "management"); err != nil {
			_ = s.public.Shutdown(context.Background())
			return err
		}
	}

	if s.configPath != "" {
		if err := s.startWatcher(); err != nil {
			// Reload stays available through the management endpoint
			s.logger.Warn("config watcher unavailable", "error", err)
		}
	}

	s.logger.Info("rategate started",
		"addr", s.public.Addr,
		"store", s.config.Rategate.Store.Type,
	)
	return nil
}

// serve binds the listener synchronously so bind errors fail startup, then
// serves in the background.
func (s *Server) serve(srv *http.Server, name string) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("%s listener: %w", name, err)
	}

	s.logger.Info("listener started", "name", name, "addr", srv.Addr)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("listener failed", "name", name, "error", err)
		}
	}()
	return nil
}

func (s *Server) startWatcher() error {
	watcherConfig := config.DefaultWatcherConfig()
	watcherConfig.OnChange = func(newConfig *config.Config) error {
		rules, err := newConfig.BuildRuleset()
		if err != nil {
			return err
		}
		s.gate.Reload(rules)
		s.logger.Info("ruleset reloaded from config file")
		return nil
	}
	watcherConfig.OnError = func(err error) {
		s.logger.Error("config reload failed", "error", err)
	}

	watcher, err := config.NewWatcher(s.configPath, watcherConfig, s.logger)
	if err != nil {
		return err
	}

	watcher.Start()
	s.watcher = watcher
	return nil
}

// Stop gracefully stops the server and releases the store.
func (s *Server) Stop(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("failed to stop config watcher", "error", err)
		}
	}

	var wg sync.WaitGroup
	var errs []error
	var errMu sync.Mutex

	shutdown := func(srv *http.Server, name string) {
		defer wg.Done()
		if err := srv.Shutdown(ctx); err != nil {
			errMu.Lock()
			errs = append(errs, fmt.Errorf("stopping %s listener: %w", name, err))
			errMu.Unlock()
		}
	}

	wg.Add(1)
	go shutdown(s.public, "authorize")
	if s.admin != nil {
		wg.Add(1)
		go shutdown(s.admin, "management")
	}
	wg.Wait()

	if s.recorder != nil {
		s.recorder.Close()
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("rategate stopped")
	return nil
}
