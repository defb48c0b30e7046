package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/pkg/contextx"
)

func TestJSON_UsesContextTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
	ctx := contextx.WithTraceID(req.Context(), "abc123")
	ctx = contextx.WithRequestID(ctx, "req-1")
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	JSON(res, req, http.StatusOK, map[string]int{"totalElements": 3})

	var env Envelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "abc123", env.Meta.TraceID)
	assert.Equal(t, "req-1", env.Meta.RequestID)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))
}

func TestErrorJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-Id", "from-header")
	res := httptest.NewRecorder()

	ErrorJSON(res, req, MapStatus(ErrNotFound), ErrNotFound, "audit log not found")

	assert.Equal(t, http.StatusNotFound, res.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrNotFound, env.Error.Code)
	assert.Equal(t, "from-header", env.Meta.TraceID)
}

func TestErrorProblem(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/search", nil)
	res := httptest.NewRecorder()

	ErrorProblem(res, req, http.StatusBadRequest, ErrValidation, "size must be between 1 and 100", nil)

	var p Problem
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &p))
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, ErrValidation, p.Code)
	assert.Equal(t, "/api/v1/audit-logs/search", p.Instance)
	assert.Len(t, p.TraceID, 32)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]int{
		ErrValidation:     http.StatusBadRequest,
		ErrMissingToken:   http.StatusUnauthorized,
		ErrForbidden:      http.StatusForbidden,
		ErrNotFound:       http.StatusNotFound,
		ErrAlreadyExists:  http.StatusConflict,
		ErrRateLimit:      http.StatusTooManyRequests,
		ErrGatewayTimeout: http.StatusServiceUnavailable,
		ErrSystem:         http.StatusInternalServerError,
		"UNKNOWN":         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, MapStatus(code), code)
	}
}
