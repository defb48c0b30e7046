package middleware

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/godamri/helix-audit/pkg/contextx"
)

const (
	TraceHeader   = "X-Trace-Id"
	RequestHeader = "X-Request-Id"
)

// TraceIDMiddleware stamps trace and request ids on the request context and
// echoes them back. Without an X-Trace-Id header the id of the active span
// is used, so logs, responses and traces agree. The request id becomes the
// requestId of audit events triggered by this request.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				uid := uuid.New()
				traceID = hex.EncodeToString(uid[:])
			}
			r.Header.Set(TraceHeader, traceID)
		}

		reqID := r.Header.Get(RequestHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		w.Header().Set(TraceHeader, traceID)
		w.Header().Set(RequestHeader, reqID)

		ctx := contextx.WithTraceID(r.Context(), traceID)
		ctx = contextx.WithRequestID(ctx, reqID)
		ctx = contextx.WithEntryPoint(ctx, contextx.EntryPointHTTP)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
