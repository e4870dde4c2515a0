package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"nulldrop/internal/server/config"
	"nulldrop/internal/server/storage"

	"github.com/labstack/echo/v4"
)

// Lifecycle-misuse errors.
var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNotRunning     = errors.New("server is not running")
)

// Server owns the HTTP listener and the expiry watchdog and keeps their
// lifecycles in lockstep: Start brings both up, Stop tears both down.
type Server struct {
	cfg      *config.Config
	echo     *echo.Echo
	watchdog *storage.Watchdog

	mu      sync.Mutex
	running bool
}

// NewServer wires a stopped server.
func NewServer(cfg *config.Config, e *echo.Echo, watchdog *storage.Watchdog) *Server {
	return &Server{cfg: cfg, echo: e, watchdog: watchdog}
}

// Start launches the watchdog (unless temporary storage is force-disabled)
// and then binds the listener in a background goroutine. Listener failures
// after startup are logged, not returned.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	if s.cfg.WatchdogDisabled() {
		slog.Info("temporary storage force-disabled, watchdog not started")
	} else {
		if err := s.watchdog.Start(); err != nil {
			return fmt.Errorf("failed to start watchdog: %w", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	go func() {
		slog.Info("listening", "addr", addr, "upload_url", s.cfg.UploadURL)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listener stopped", "error", err)
		}
	}()

	s.running = true
	return nil
}

// Stop shuts the listener down gracefully, draining in-flight requests
// within the context deadline, then stops the watchdog. No further sweeps
// fire after Stop returns.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	s.running = false

	if err := s.echo.Shutdown(ctx); err != nil {
		slog.Error("forced listener shutdown", "error", err)
	}

	if s.watchdog.Running() {
		if err := s.watchdog.Stop(); err != nil {
			return fmt.Errorf("failed to stop watchdog: %w", err)
		}
	}

	return nil
}
