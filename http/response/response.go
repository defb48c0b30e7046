package response

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/godamri/helix-audit/pkg/contextx"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    Meta   `json:"meta"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	TraceID   string `json:"trace_id"`
	RequestID string `json:"request_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, Envelope{
		Success: true,
		Data:    data,
		Meta:    metaFor(r),
	})
}

func ErrorJSON(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, status, Envelope{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
		Meta: metaFor(r),
	})
}

func write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode error (broken pipe) has nowhere to go.
	_ = json.NewEncoder(w).Encode(payload)
}

func metaFor(r *http.Request) Meta {
	return Meta{TraceID: getTraceID(r), RequestID: contextx.GetRequestID(r.Context())}
}

// getTraceID prefers the id the trace middleware put on the context.
func getTraceID(r *http.Request) string {
	if tid := contextx.GetTraceID(r.Context()); tid != "untriaged" && tid != "" {
		return tid
	}
	if tid := r.Header.Get("X-Trace-Id"); tid != "" {
		return tid
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
