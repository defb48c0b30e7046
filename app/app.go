package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 15 * time.Second

// Hook releases one resource during shutdown.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Runner encapsulates process startup and ordered teardown.
type Runner struct {
	Logger          *slog.Logger
	ShutdownTimeout time.Duration

	mu    sync.Mutex
	hooks []Hook
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Logger: logger, ShutdownTimeout: defaultShutdownTimeout}
}

// OnShutdown registers a hook. Hooks run in reverse registration order, so
// consumers registered after their store are stopped before it.
func (r *Runner) OnShutdown(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, Hook{Name: name, Fn: fn})
}

// Run calls fn with a context that cancels on SIGTERM/SIGINT and blocks until
// fn returns. Shutdown hooks run afterwards in every case. The returned
// error joins fn's error with any hook failures.
func (r *Runner) Run(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, fn)
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) error {
	r.Logger.Info("service starting")

	runErr := fn(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		r.Logger.Error("service stopped with error", "error", runErr)
	} else {
		runErr = nil
		r.Logger.Info("shutdown signal received, cleaning up")
	}

	shutdownErr := r.shutdown()
	if shutdownErr == nil {
		r.Logger.Info("service shutdown complete")
	}
	return errors.Join(runErr, shutdownErr)
}

func (r *Runner) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()

	r.mu.Lock()
	hooks := make([]Hook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.Fn(ctx); err != nil {
			r.Logger.Error("shutdown hook failed", "hook", h.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Main runs fn and exits non-zero on failure.
func (r *Runner) Main(fn func(ctx context.Context) error) {
	if err := r.Run(fn); err != nil {
		os.Exit(1)
	}
}
