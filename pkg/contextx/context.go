package contextx

import (
	"context"
)

type contextKey string

const (
	AuthPrincipalIDKey contextKey = "helix.auth_principal_id" // acting user (sub)
	UserInfoKey        contextKey = "helix.user_info"         // opaque snapshot of the acting user

	TraceIDKey       contextKey = "helix.trace_id"
	RequestIDKey     contextKey = "helix.request_id"
	SourceServiceKey contextKey = "helix.source_service"
	EntryPointKey    contextKey = "helix.entry_point" // http | consumer | cli

	RetryAttemptKey contextKey = "helix.retry_attempt"
)

const (
	EntryPointHTTP     = "http"
	EntryPointConsumer = "consumer"
	EntryPointCLI      = "cli"
)

func GetTraceID(ctx context.Context) string { return getString(ctx, TraceIDKey, "untriaged") }
func WithTraceID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, TraceIDKey, v)
}

func GetRequestID(ctx context.Context) string { return getString(ctx, RequestIDKey, "") }
func WithRequestID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, RequestIDKey, v)
}

func GetSourceService(ctx context.Context) string { return getString(ctx, SourceServiceKey, "unknown") }
func WithSourceService(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, SourceServiceKey, v)
}

func GetEntryPoint(ctx context.Context) string { return getString(ctx, EntryPointKey, "unknown") }
func WithEntryPoint(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, EntryPointKey, v)
}

// GetAuthPrincipalID returns the acting user, or "" for system-initiated work.
func GetAuthPrincipalID(ctx context.Context) string { return getString(ctx, AuthPrincipalIDKey, "") }
func WithAuthPrincipalID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, AuthPrincipalIDKey, v)
}

// GetUserInfo returns the serialized user metadata attached by the edge, if any.
func GetUserInfo(ctx context.Context) string { return getString(ctx, UserInfoKey, "") }
func WithUserInfo(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, UserInfoKey, v)
}

func GetRetryAttempt(ctx context.Context) int { return getInt(ctx, RetryAttemptKey, 0) }
func WithRetryAttempt(ctx context.Context, v int) context.Context {
	return context.WithValue(ctx, RetryAttemptKey, v)
}

func getString(ctx context.Context, key contextKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return fallback
}

func getInt(ctx context.Context, key contextKey, fallback int) int {
	if ctx == nil {
		return fallback
	}
	if val, ok := ctx.Value(key).(int); ok {
		return val
	}
	return fallback
}
