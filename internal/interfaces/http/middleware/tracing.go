// Package middleware provides the HTTP middleware of the invoicing service.
package middleware

import (
	"net/http"
	"strings"

	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes set on invoicing server spans
const (
	AttrRequestID  = attribute.Key("request_id")
	AttrIdempotent = attribute.Key("invoice.idempotent")
	AttrClientID   = attribute.Key(telemetry.SpanAttrClientID)
	AttrInvoiceID  = attribute.Key(telemetry.SpanAttrInvoiceID)
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are path prefixes that never get a server span.
	SkipPaths []string
}

// Tracing returns the server span chain: otelgin opens a span named
// "METHOD route", then SpanAnnotator decorates it. Health probes are not
// traced by default. Place it after RequestID.
func Tracing(cfg TracingConfig) []gin.HandlerFunc {
	if !cfg.Enabled {
		return nil
	}
	skip := cfg.SkipPaths
	if skip == nil {
		skip = []string{"/health"}
	}
	traced := func(r *http.Request) bool {
		for _, p := range skip {
			if strings.HasPrefix(r.URL.Path, p) {
				return false
			}
		}
		return true
	}
	return []gin.HandlerFunc{
		otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(traced)),
		SpanAnnotator(),
	}
}

// SpanAnnotator tags the server span with request correlation and invoice
// identifiers, and marks it failed when the response is a 4xx or 5xx.
func SpanAnnotator() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if requestID := c.GetString(RequestIDKey); requestID != "" {
			span.SetAttributes(AttrRequestID.String(requestID))
		}
		if c.GetHeader(IdempotencyHeader) != "" {
			span.SetAttributes(AttrIdempotent.Bool(true))
		}
		if clientID := c.Param("client_id"); clientID != "" {
			span.SetAttributes(AttrClientID.String(clientID))
		}
		if id := c.Param("id"); id != "" {
			span.SetAttributes(AttrInvoiceID.String(id))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
			span.SetAttributes(attribute.Int("http.status_code", status))
		}
	}
}
