package router

import (
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EngineConfig selects the middleware installed by NewEngine
type EngineConfig struct {
	ServiceName    string
	TrustedProxies []string
	MaxBodySize    int64

	CORS        middleware.CORSConfig
	Security    middleware.SecurityConfig
	RateLimiter *middleware.RateLimiter // nil disables rate limiting

	TracingEnabled   bool
	ProfilingEnabled bool
	MeterProvider    *telemetry.MeterProvider // nil disables HTTP metrics
}

// NewEngine builds a gin engine with the middleware chain shared by the
// service and the gateway. Order matters: everything that inspects the final
// status (logging, span status, metrics) runs outside the FailureTranslator,
// and everything that rejects requests runs inside it.
func NewEngine(cfg EngineConfig, log *zap.Logger) (*gin.Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, err
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.AccessLog(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	})...)
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: cfg.MeterProvider,
		Enabled:       cfg.MeterProvider != nil,
	}))
	engine.Use(middleware.FailureTranslator(log))
	engine.Use(middleware.SecureWithConfig(cfg.Security))
	engine.Use(middleware.CORSWithConfig(cfg.CORS))

	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.ProfilingEnabled
	engine.Use(middleware.ProfilingWithConfig(profiling))

	if cfg.RateLimiter != nil {
		engine.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	return engine, nil
}
