package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the LettuceSpeak tracer.
const tracerName = "github.com/MrWong99/lettucespeak"

// Tracer returns the package-level [trace.Tracer]. It uses the globally
// registered [trace.TracerProvider], so spans are dropped until
// [InitProvider] has run.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartKeystrokeSpan starts the span that covers handling of a single key.
// key is the typed letter or "backspace".
func StartKeystrokeSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return StartSpan(ctx, "keystroke",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("lettucespeak.key", key)),
	)
}

// CorrelationID extracts the trace ID from the span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the span context in ctx. Without an active span the default logger is
// returned unchanged.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
