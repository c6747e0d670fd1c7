package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ginRequestIDKey    = "request_id"
	ginFailureLabelKey = "failure_label"
	idempotencyHeader  = "Idempotency-Key"
)

// AccessLog writes one entry per request once the handler chain returns.
// It must run after the request id middleware. The request context gets the
// request logger plus request_id and idempotency_key correlation fields so
// services log with them through WithLogger.
func AccessLog(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := WithField(c.Request.Context(), FieldRequestID, c.GetString(ginRequestIDKey))
		ctx = WithField(ctx, FieldIdempotencyKey, c.GetHeader(idempotencyHeader))
		reqLogger := base.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(WithContext(ctx, reqLogger))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		if label := c.GetString(ginFailureLabelKey); label != "" {
			fields = append(fields, zap.String("error_label", label))
		}

		l := WithTraceContext(c.Request.Context(), reqLogger)
		switch {
		case status >= 500:
			l.Error("HTTP request", fields...)
		case status >= 400:
			l.Warn("HTTP request", fields...)
		default:
			l.Info("HTTP request", fields...)
		}
	}
}
