// Package gateway implements the edge reverse proxy in front of the
// invoicing API. Failures to reach an upstream are attached to the request
// and rendered by the FailureTranslator like any other failure.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Route forwards every request whose path starts with Prefix to Target
type Route struct {
	Prefix string
	Name   string
	Target *url.URL
	proxy  *httputil.ReverseProxy
}

// Gateway matches requests to routes, longest prefix first
type Gateway struct {
	routes []*Route
	logger *zap.Logger
}

// Option configures a Gateway
type Option func(*options)

type options struct {
	transport http.RoundTripper
	logger    *zap.Logger
}

// WithTransport replaces the upstream transport
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewTransport builds the traced upstream transport used by default
func NewTransport(cfg config.GatewayConfig) http.RoundTripper {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	return otelhttp.NewTransport(base)
}

// New creates a gateway for the configured routes
func New(cfg config.GatewayConfig, opts ...Option) (*Gateway, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = NewTransport(cfg)
	}

	g := &Gateway{logger: o.logger.Named("gateway")}
	for _, prefix := range cfg.SortedPrefixes() {
		target, err := url.Parse(cfg.Routes[prefix])
		if err != nil {
			return nil, fmt.Errorf("invalid upstream for %s: %w", prefix, err)
		}
		route := &Route{
			Prefix: strings.TrimSuffix(prefix, "/"),
			Name:   upstreamName(prefix),
			Target: target,
		}
		route.proxy = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
			},
			Transport:    o.transport,
			ErrorHandler: captureError,
		}
		g.routes = append(g.routes, route)
	}
	return g, nil
}

// Routes returns the routes in match order
func (g *Gateway) Routes() []*Route {
	return g.routes
}

// Match returns the route serving p, or nil
func (g *Gateway) Match(p string) *Route {
	for _, r := range g.routes {
		if p == r.Prefix || strings.HasPrefix(p, r.Prefix+"/") {
			return r
		}
	}
	return nil
}

// Handler proxies the request to the matching upstream. Unknown paths attach
// dto.ErrRouteNotFound; transport failures attach a DownstreamError.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := g.Match(c.Request.URL.Path)
		if route == nil {
			_ = c.Error(dto.ErrRouteNotFound)
			c.Abort()
			return
		}

		var proxyErr error
		ctx, cancel := context.WithCancel(context.WithValue(c.Request.Context(), proxyErrorKey{}, &proxyErr))
		defer cancel()
		req := c.Request.WithContext(ctx)
		if requestID := c.GetString(middleware.RequestIDKey); requestID != "" {
			req.Header.Set(middleware.RequestIDHeader, requestID)
		}

		route.proxy.ServeHTTP(c.Writer, req)

		if proxyErr != nil {
			logger.WithLogger(c.Request.Context(), g.logger).Warn("Upstream request failed",
				zap.String("upstream", route.Name),
				zap.String("target", route.Target.String()),
				zap.Error(proxyErr),
			)
			_ = c.Error(shared.NewDownstreamError(resilience.Classify(proxyErr), route.Name, proxyErr))
			c.Abort()
		}
	}
}

type proxyErrorKey struct{}

// captureError records the transport failure for Handler instead of writing
// the default 502 response.
func captureError(_ http.ResponseWriter, r *http.Request, err error) {
	if p, ok := r.Context().Value(proxyErrorKey{}).(*error); ok {
		*p = err
	}
}

// upstreamName names an upstream after the last segment of its prefix
func upstreamName(prefix string) string {
	name := path.Base(strings.TrimSuffix(prefix, "/"))
	if name == "/" || name == "." || name == "" {
		return "upstream"
	}
	return name
}
