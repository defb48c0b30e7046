package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/godamri/helix-audit/http/response"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbiddenSource = errors.New("forbidden: untrusted source")
)

// AuthPayload decouples the strategy from *http.Request.
type AuthPayload struct {
	Headers    map[string]string
	RemoteAddr string
	Method     string
	Path       string
}

// AuthStrategy resolves the caller and returns a context carrying its
// identity (see pkg/contextx).
type AuthStrategy interface {
	Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error)
}

type AuthMiddleware struct {
	strategy AuthStrategy
}

func NewAuthMiddleware(strategy AuthStrategy) *AuthMiddleware {
	return &AuthMiddleware{
		strategy: strategy,
	}
}

// HTTPMiddleware adapts the request to an AuthPayload and rejects callers
// the strategy refuses.
func (m *AuthMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			if len(v) > 0 {
				headers[http.CanonicalHeaderKey(k)] = v[0]
			}
		}

		payload := AuthPayload{
			Headers:    headers,
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
		}

		ctx, err := m.strategy.Authenticate(r.Context(), payload)
		if err != nil {
			code := response.ErrMissingToken
			if errors.Is(err, ErrForbiddenSource) {
				code = response.ErrForbidden
			}
			response.ErrorJSON(w, r, response.MapStatus(code), code, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetHeader looks a header up case-insensitively.
func (p *AuthPayload) GetHeader(key string) string {
	if v, ok := p.Headers[key]; ok {
		return v
	}
	if v, ok := p.Headers[http.CanonicalHeaderKey(key)]; ok {
		return v
	}
	for k, v := range p.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
