package middleware

import (
	"context"
	"strings"

	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Pyroscope label keys set per request
const (
	ProfilingLabelMethod    = "http_method"
	ProfilingLabelRoute     = "http_route"
	ProfilingLabelOperation = "operation"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled bool
	// SkipPaths are path prefixes served without labels.
	SkipPaths []string
}

// DefaultProfilingConfig leaves health probes unlabelled.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{Enabled: true, SkipPaths: []string{"/health"}}
}

// ProfilingWithConfig runs the rest of the chain under Pyroscope labels so
// CPU profiles can be split by invoicing operation. Unmatched routes are not
// labelled.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || hasAnyPrefix(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		labels := map[string]string{
			ProfilingLabelMethod:    c.Request.Method,
			ProfilingLabelRoute:     route,
			ProfilingLabelOperation: operationName(route),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// operationName joins the static segments of a route after the api and
// version prefixes: "/api/v1/invoices/:id/void" gives "invoices.void".
func operationName(route string) string {
	var parts []string
	for _, seg := range strings.Split(route, "/") {
		switch {
		case seg == "", seg == "api", isVersionSegment(seg):
		case strings.HasPrefix(seg, ":"), strings.HasPrefix(seg, "*"):
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, ".")
}

func isVersionSegment(seg string) bool {
	if len(seg) < 2 || (seg[0] != 'v' && seg[0] != 'V') {
		return false
	}
	return strings.Trim(seg[1:], "0123456789") == ""
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
