package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelHandler wraps a slog.Handler. It stamps trace_id/span_id on records
// logged inside a recording span, and mirrors WARN and ERROR records onto it.
type OTelHandler struct {
	slog.Handler
	// bound holds attributes added through WithAttrs, e.g. "component".
	bound []attribute.KeyValue
}

func NewOTelHandler(h slog.Handler) *OTelHandler {
	return &OTelHandler{Handler: h}
}

func (h *OTelHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)

	if span.IsRecording() {
		sc := span.SpanContext()
		if sc.HasTraceID() {
			r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
		}
		if sc.HasSpanID() {
			r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
		}
		if r.Level >= slog.LevelWarn {
			h.enrichSpan(span, r)
		}
	}

	return h.Handler.Handle(ctx, r)
}

func (h *OTelHandler) enrichSpan(span trace.Span, r slog.Record) {
	attrs := make([]attribute.KeyValue, 0, len(h.bound)+r.NumAttrs())
	attrs = append(attrs, h.bound...)

	var logged error
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "trace_id" || a.Key == "span_id" {
			return true
		}
		if err, ok := a.Value.Any().(error); ok && a.Key == "error" {
			logged = err
		}
		attrs = append(attrs, toAttribute(a))
		return true
	})

	if r.Level < slog.LevelError {
		span.AddEvent("log_warning", trace.WithAttributes(
			append(attrs, attribute.String("message", r.Message))...,
		))
		return
	}

	if logged == nil {
		logged = errors.New(r.Message)
	}
	span.RecordError(logged, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, r.Message)
}

func toAttribute(a slog.Attr) attribute.KeyValue {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return attribute.String(a.Key, v.String())
	case slog.KindInt64:
		return attribute.Int64(a.Key, v.Int64())
	case slog.KindUint64:
		return attribute.Int64(a.Key, int64(v.Uint64()))
	case slog.KindFloat64:
		return attribute.Float64(a.Key, v.Float64())
	case slog.KindBool:
		return attribute.Bool(a.Key, v.Bool())
	case slog.KindDuration:
		return attribute.Int64(a.Key+"_ms", v.Duration().Milliseconds())
	default:
		return attribute.String(a.Key, v.String())
	}
}

func (h *OTelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]attribute.KeyValue, 0, len(h.bound)+len(attrs))
	bound = append(bound, h.bound...)
	for _, a := range attrs {
		bound = append(bound, toAttribute(a))
	}
	return &OTelHandler{Handler: h.Handler.WithAttrs(attrs), bound: bound}
}

func (h *OTelHandler) WithGroup(name string) slog.Handler {
	return &OTelHandler{Handler: h.Handler.WithGroup(name), bound: h.bound}
}
