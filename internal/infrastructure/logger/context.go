package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Keys under which the HTTP middleware stores values on the gin context
const (
	RequestIDKey = "request_id"
	LoggerKey    = "logger"
)

// ctxKey keys values this package stores on a context.Context
type ctxKey int

const (
	loggerCtxKey ctxKey = iota
	requestIDCtxKey
)

// ContextWithLogger attaches a base logger that L resolves
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, l)
}

// ContextWithRequestID tags ctx with the ID of the request or command being served
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// RequestIDFrom returns the request ID on ctx, or "" when none was set
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// Fields returns the correlation fields carried by ctx: trace_id and span_id
// of a valid span, and request_id.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	if id := RequestIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}

// ForContext returns base tagged with the correlation fields of ctx.
// base comes back unchanged when ctx carries none.
func ForContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// L returns the logger attached to ctx, tagged with its correlation fields.
// A context without a logger yields a no-op logger.
func L(ctx context.Context) *zap.Logger {
	base, ok := ctx.Value(loggerCtxKey).(*zap.Logger)
	if !ok {
		base = zap.NewNop()
	}
	return ForContext(ctx, base)
}
