package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	correlationKey
)

// Correlation field names carried on the request context.
const (
	FieldRequestID      = "request_id"
	FieldClientID       = "client_id"
	FieldIdempotencyKey = "idempotency_key"
)

// correlation is an immutable list of key/value pairs; WithField copies it.
type correlation []zap.Field

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithField records a correlation value on ctx. Empty values are ignored and
// a later value for the same name replaces the earlier one.
func WithField(ctx context.Context, name, value string) context.Context {
	if value == "" {
		return ctx
	}
	prev, _ := ctx.Value(correlationKey).(correlation)
	next := make(correlation, 0, len(prev)+1)
	for _, f := range prev {
		if f.Key != name {
			next = append(next, f)
		}
	}
	next = append(next, zap.String(name, value))
	return context.WithValue(ctx, correlationKey, next)
}

// Field returns the correlation value recorded under name.
func Field(ctx context.Context, name string) string {
	fields, _ := ctx.Value(correlationKey).(correlation)
	for _, f := range fields {
		if f.Key == name {
			return f.String
		}
	}
	return ""
}

// GetRequestID returns the request id recorded on ctx.
func GetRequestID(ctx context.Context) string {
	return Field(ctx, FieldRequestID)
}

// GetTraceID returns the trace id of the active span, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// WithTraceContext returns logger with trace_id, span_id and every
// correlation field of ctx attached.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if c, ok := ctx.Value(correlationKey).(correlation); ok {
		fields = append(fields, c...)
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// ContextLogger logs through a base logger with the correlation fields of a
// context added at write time.
//
//	logger.WithLogger(ctx, s.logger).Info("Invoice created", zap.String("number", n))
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L uses the logger attached to ctx.
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger uses logger instead of the one attached to ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) entry() *zap.Logger {
	return WithTraceContext(cl.ctx, cl.logger)
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.entry().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.entry().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.entry().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.entry().Error(msg, fields...) }
