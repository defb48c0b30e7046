package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/godamri/helix-audit/audit"
)

// maxAuditBody is the largest request body recorded as newValue.
const maxAuditBody = 64 << 10

var auditSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "audit_middleware_skipped_total",
	Help: "Mutations the audit middleware could not record, labeled by reason.",
}, []string{"reason"})

type auditCaptureKey struct{}

// auditCapture lets a handler refine the event the middleware will emit.
type auditCapture struct {
	entityID string
	oldValue any
	newValue any
	skip     bool
}

// SetAuditEntityID names the affected entity, e.g. the id assigned on create.
func SetAuditEntityID(ctx context.Context, id string) {
	if c, ok := ctx.Value(auditCaptureKey{}).(*auditCapture); ok {
		c.entityID = id
	}
}

// SetAuditOldValue records the snapshot before an update or delete.
func SetAuditOldValue(ctx context.Context, v any) {
	if c, ok := ctx.Value(auditCaptureKey{}).(*auditCapture); ok {
		c.oldValue = v
	}
}

// SetAuditNewValue replaces the request body as the after-snapshot.
func SetAuditNewValue(ctx context.Context, v any) {
	if c, ok := ctx.Value(auditCaptureKey{}).(*auditCapture); ok {
		c.newValue = v
	}
}

// SkipAudit suppresses the event for this request.
func SkipAudit(ctx context.Context) {
	if c, ok := ctx.Value(auditCaptureKey{}).(*auditCapture); ok {
		c.skip = true
	}
}

// AuditMiddleware publishes an audit event for every successful mutation:
// POST as CREATED, PUT and PATCH as UPDATED, DELETE as DELETED. The entity
// id comes from the idParam route parameter unless the handler sets one.
// Publishing never affects the response.
func AuditMiddleware(svc *audit.Service, entityType, idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			eventType, ok := eventTypeFor(r.Method)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var body []byte
			oversized := false
			if r.Body != nil && eventType != audit.EventDeleted {
				// One byte past the cap tells a full body from a truncated one.
				body, _ = io.ReadAll(io.LimitReader(r.Body, maxAuditBody+1))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				oversized = len(body) > maxAuditBody
			}

			capture := &auditCapture{}
			ctx := context.WithValue(r.Context(), auditCaptureKey{}, capture)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if capture.skip || status < 200 || status >= 300 {
				return
			}

			entityID := capture.entityID
			if entityID == "" {
				entityID = chi.URLParam(r, idParam)
			}

			var newValue any
			if eventType != audit.EventDeleted {
				newValue = capture.newValue
				if newValue == nil && oversized {
					auditSkippedTotal.WithLabelValues("body_too_large").Inc()
					slog.WarnContext(ctx, "audit event skipped, request body too large",
						"entity_type", entityType, "entity_id", entityID, "limit", maxAuditBody)
					return
				}
				if newValue == nil && len(body) > 0 {
					newValue = string(body)
				}
			}

			// The request context is cancelled once the handler returns.
			svc.Publish(context.WithoutCancel(ctx), eventType, entityType, entityID, capture.oldValue, newValue, "")
		})
	}
}

func eventTypeFor(method string) (audit.EventType, bool) {
	switch method {
	case http.MethodPost:
		return audit.EventCreated, true
	case http.MethodPut, http.MethodPatch:
		return audit.EventUpdated, true
	case http.MethodDelete:
		return audit.EventDeleted, true
	}
	return "", false
}
