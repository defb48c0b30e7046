package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/godamri/helix-audit/http/response"
)

// PanicRecovery handles panics in HTTP handlers.
// It logs the stack trace with context and returns a 500 envelope.
// It does NOT call os.Exit: the server must stay alive.
func PanicRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "http panic recovered",
					"error", fmt.Sprintf("%v", rec),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				// Never leak the stack trace to the client.
				response.ErrorJSON(w, r, http.StatusInternalServerError, response.ErrSystem, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
