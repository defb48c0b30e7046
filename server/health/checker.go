package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

// CheckFunc reports whether one dependency is usable.
type CheckFunc func(ctx context.Context) error

// Checker handles the health check endpoints.
type Checker struct {
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		logger: logger.With("component", "health"),
		// A slow dependency counts as down: cut traffic before requests pile up.
		timeout: 500 * time.Millisecond,
		checks:  make(map[string]CheckFunc),
	}
}

// Register adds a readiness check, e.g. "db", "redis", "kafka".
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RegisterRoutes registers the health check routes on the router.
func (c *Checker) RegisterRoutes(r chi.Router) {
	r.Get("/health", c.HandleHealth)   // Liveness
	r.Get("/ready", c.HandleReadiness) // Readiness
}

// HandleHealth returns 200 while the process is running.
func (c *Checker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleReadiness runs every check concurrently and reports 503 if any fails.
func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = map[string]string{"status": statusUp}
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			status := statusUp
			if err := fn(ctx); err != nil {
				c.logger.ErrorContext(r.Context(), "readiness check failed", "check", name, "error", err)
				status = statusDown
			}
			mu.Lock()
			result[name] = status
			if status == statusDown {
				result["status"] = statusDown
			}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	statusCode := http.StatusOK
	if result["status"] == statusDown {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}
