package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/erp/invoicing/internal/infrastructure/clientregistry"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/event"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/persistence"
	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/erp/invoicing/internal/infrastructure/taxservice"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/erp/invoicing/internal/interfaces/http/handler"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/erp/invoicing/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  logger.DefaultTimeFormat,
		Service:     cfg.App.Name,
		Environment: cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry: traces, metrics, log export and profiling
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		Level:             cfg.Telemetry.LogsLevel,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiling.Enabled,
		ServerAddress:   cfg.Profiling.ServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Warn("Profiler failed to start, continuing without profiling", zap.Error(err))
		profiler = nil
	}
	profilingEnabled := profiler != nil && profiler.IsEnabled()
	if profilingEnabled && cfg.Profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting invoicing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database with zap-backed gorm logging and query instrumentation
	dbPlugin, err := telemetry.NewDBPlugin(meterProvider.Meter("invoicing.db"), telemetry.DBConfig{
		TraceEnabled:       cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to create database plugin", zap.Error(err))
	}
	db, err := persistence.Open(&cfg.Database,
		persistence.WithGormLogger(logger.NewSQLLogger(log, cfg.Log.Level, cfg.Telemetry.DBSlowQueryThresh)),
		persistence.WithPlugins(dbPlugin),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbPlugin.StartPoolStats(ctx, db.SQL())
	defer dbPlugin.Stop()
	log.Info("Database connected successfully")

	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)

	// Caches: LRU, tiered with Redis when enabled and reachable
	cacheFactory := cache.NewFactory(ctx, cfg.Redis, cfg.Cache, cache.WithLogger(log))
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing redis", zap.Error(err))
		}
	}()

	// Remote dependencies behind circuit breakers
	resilienceMetrics, err := telemetry.NewResilienceMetrics(meterProvider.Meter("invoicing.resilience"))
	if err != nil {
		log.Fatal("Failed to create resilience metrics", zap.Error(err))
	}

	registryBreaker := resilience.NewBreaker(breakerConfig(clientregistry.DependencyName, cfg.ClientRegistry.Breaker),
		resilience.WithBreakerLogger(log),
		resilience.WithBreakerMetrics(resilienceMetrics),
	)
	registryExec := resilience.NewExecutor(registryBreaker,
		resilience.WithTimeout[invoicing.ClientLookup](cfg.ClientRegistry.Timeout),
		resilience.WithCache[invoicing.ClientLookup](cache.New[invoicing.ClientLookup](cacheFactory, "clients",
			cfg.ClientRegistry.Cache.Size, cfg.ClientRegistry.Cache.TTL)),
		resilience.WithLogger[invoicing.ClientLookup](log),
		resilience.WithMetrics[invoicing.ClientLookup](resilienceMetrics),
	)
	clientGate := clientregistry.NewGate(
		clientregistry.NewHTTPClient(cfg.ClientRegistry.BaseURL, clientregistry.WithLogger(log)),
		registryExec,
		log,
	)

	taxBreaker := resilience.NewBreaker(breakerConfig(taxservice.DependencyName, cfg.TaxService.Breaker),
		resilience.WithBreakerLogger(log),
		resilience.WithBreakerMetrics(resilienceMetrics),
	)
	taxExec := resilience.NewExecutor(taxBreaker,
		resilience.WithTimeout[[]invoicing.TaxQuote](cfg.TaxService.Timeout),
		resilience.WithLogger[[]invoicing.TaxQuote](log),
		resilience.WithMetrics[[]invoicing.TaxQuote](resilienceMetrics),
	)
	taxGate := taxservice.NewGate(
		taxservice.NewHTTPClient(cfg.TaxService.BaseURL, taxservice.WithLogger(log)),
		taxExec,
		cache.New[invoicing.TaxQuote](cacheFactory, "tax-quotes", cfg.TaxService.Cache.Size, cfg.TaxService.Cache.TTL),
		taxservice.WithGateMetrics(resilienceMetrics),
		taxservice.WithGateLogger(log),
	)

	// Domain events: audit log always, Kafka when enabled
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	var kafkaSink *event.KafkaEventSink
	if cfg.Events.KafkaEnabled {
		kafkaSink = event.NewKafkaEventSink(
			event.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic),
			event.NewSerializer(),
			log,
		)
		eventBus.Subscribe(kafkaSink)
		log.Info("Kafka event sink enabled",
			zap.Strings("brokers", cfg.Events.KafkaBrokers),
			zap.String("topic", cfg.Events.KafkaTopic),
		)
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	invoiceMetrics, err := telemetry.NewInvoiceMetrics(meterProvider.Meter("invoicing.service"))
	if err != nil {
		log.Fatal("Failed to create invoice metrics", zap.Error(err))
	}

	invoiceService := appinvoicing.NewInvoiceService(clientGate, taxGate, invoiceRepo,
		appinvoicing.WithEventPublisher(eventBus),
		appinvoicing.WithMetrics(invoiceMetrics),
		appinvoicing.WithLogger(log),
	)

	// HTTP
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	var httpMeter *telemetry.MeterProvider
	if meterProvider.IsEnabled() {
		httpMeter = meterProvider
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		CORS:             corsConfig,
		Security:         middleware.DefaultSecurityConfig(),
		RateLimiter:      middleware.NewRateLimiter(50, 100, 10000, 10*time.Minute),
		TracingEnabled:   tracerProvider.IsEnabled(),
		ProfilingEnabled: profilingEnabled,
		MeterProvider:    httpMeter,
	}, log)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	checks := []handler.HealthCheck{{Name: "database", Check: db.Ping}}
	if client := cacheFactory.Client(); client != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	router.RegisterHealthRoutes(engine, handler.NewHealthHandler(telemetry.ServiceVersion, checks, registryBreaker, taxBreaker))

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(router.NewInvoicingRoutes(handler.NewInvoiceHandler(invoiceService))...).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Error("Error closing kafka writer", zap.Error(err))
		}
	}
	if profiler != nil {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Server exited")
}

func breakerConfig(name string, c config.BreakerConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:                name,
		ConsecutiveFailures: c.ConsecutiveFailures,
		FailureRatio:        c.FailureRatio,
		MinRequests:         c.MinRequests,
		Interval:            c.Interval,
		OpenTimeout:         c.OpenTimeout,
	}
}
