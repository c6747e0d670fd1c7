package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Log            LogConfig
	HTTP           HTTPConfig
	Telemetry      TelemetryConfig
	ClientRegistry DependencyConfig
	TaxService     DependencyConfig
	Cache          CacheConfig
	Events         EventsConfig
	Gateway        GatewayConfig
	Profiling      ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	LogsLevel         string
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// BreakerConfig holds the circuit breaker policy of one remote dependency
type BreakerConfig struct {
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
	Interval            time.Duration // rolling window of the closed state
	OpenTimeout         time.Duration // time spent open before a trial call
}

// DependencyCacheConfig sizes the answer cache of one remote dependency
type DependencyCacheConfig struct {
	TTL  time.Duration
	Size int
}

// DependencyConfig holds the connection and resilience settings of a remote dependency
type DependencyConfig struct {
	BaseURL string
	Timeout time.Duration
	Breaker BreakerConfig
	Cache   DependencyCacheConfig
}

// CacheConfig holds shared cache settings
type CacheConfig struct {
	RedisEnabled bool
	KeyPrefix    string
}

// EventsConfig holds domain event delivery settings
type EventsConfig struct {
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// GatewayConfig holds the edge gateway settings
type GatewayConfig struct {
	Port                  string
	Routes                map[string]string // path prefix -> upstream base URL
	ResponseHeaderTimeout time.Duration
}

// ProfilingConfig holds continuous profiling settings
type ProfilingConfig struct {
	Enabled       bool
	ServerAddress string
	SpanProfiles  bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INV_ prefix (e.g., INV_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("INV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			LogsLevel:         v.GetString("telemetry.logs_level"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		ClientRegistry: loadDependency(v, "client_registry"),
		TaxService:     loadDependency(v, "tax_service"),
		Cache: CacheConfig{
			RedisEnabled: v.GetBool("cache.redis_enabled"),
			KeyPrefix:    v.GetString("cache.key_prefix"),
		},
		Events: EventsConfig{
			KafkaEnabled: v.GetBool("events.kafka_enabled"),
			KafkaBrokers: v.GetStringSlice("events.kafka_brokers"),
			KafkaTopic:   v.GetString("events.kafka_topic"),
		},
		Gateway: GatewayConfig{
			Port:                  v.GetString("gateway.port"),
			Routes:                v.GetStringMapString("gateway.routes"),
			ResponseHeaderTimeout: v.GetDuration("gateway.response_header_timeout"),
		},
		Profiling: ProfilingConfig{
			Enabled:       v.GetBool("profiling.enabled"),
			ServerAddress: v.GetString("profiling.server_address"),
			SpanProfiles:  v.GetBool("profiling.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDependency(v *viper.Viper, prefix string) DependencyConfig {
	return DependencyConfig{
		BaseURL: v.GetString(prefix + ".base_url"),
		Timeout: v.GetDuration(prefix + ".timeout"),
		Breaker: BreakerConfig{
			ConsecutiveFailures: v.GetUint32(prefix + ".breaker.consecutive_failures"),
			FailureRatio:        v.GetFloat64(prefix + ".breaker.failure_ratio"),
			MinRequests:         v.GetUint32(prefix + ".breaker.min_requests"),
			Interval:            v.GetDuration(prefix + ".breaker.interval"),
			OpenTimeout:         v.GetDuration(prefix + ".breaker.open_timeout"),
		},
		Cache: DependencyCacheConfig{
			TTL:  v.GetDuration(prefix + ".cache.ttl"),
			Size: v.GetInt(prefix + ".cache.size"),
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invoicing-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "invoicing"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// CORS origins have no wildcard fallback; an empty list allows no cross-origin requests.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID", "Idempotency-Key"}
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	applyDependencyDefaults(&cfg.ClientRegistry, DependencyConfig{
		BaseURL: "http://localhost:8081",
		Timeout: 5 * time.Second,
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         5,
			Interval:            60 * time.Second,
			OpenTimeout:         30 * time.Second,
		},
		Cache: DependencyCacheConfig{TTL: 5 * time.Minute, Size: 1000},
	})
	applyDependencyDefaults(&cfg.TaxService, DependencyConfig{
		BaseURL: "http://localhost:8082",
		Timeout: 5 * time.Second,
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			FailureRatio:        0.6,
			MinRequests:         5,
			Interval:            60 * time.Second,
			OpenTimeout:         20 * time.Second,
		},
		Cache: DependencyCacheConfig{TTL: 10 * time.Minute, Size: 5000},
	})

	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "invoicing:"
	}
	if cfg.Events.KafkaTopic == "" {
		cfg.Events.KafkaTopic = "invoice-events"
	}
	if cfg.Gateway.Port == "" {
		cfg.Gateway.Port = "8000"
	}
	if len(cfg.Gateway.Routes) == 0 {
		cfg.Gateway.Routes = map[string]string{
			"/api/v1/invoices": "http://localhost:" + cfg.App.Port,
			"/api/v1/clients":  "http://localhost:" + cfg.App.Port,
		}
	}
	if cfg.Gateway.ResponseHeaderTimeout == 0 {
		cfg.Gateway.ResponseHeaderTimeout = 30 * time.Second
	}
}

func applyDependencyDefaults(d *DependencyConfig, def DependencyConfig) {
	if d.BaseURL == "" {
		d.BaseURL = def.BaseURL
	}
	d.BaseURL = strings.TrimRight(d.BaseURL, "/")
	if d.Timeout == 0 {
		d.Timeout = def.Timeout
	}
	if d.Breaker.ConsecutiveFailures == 0 {
		d.Breaker.ConsecutiveFailures = def.Breaker.ConsecutiveFailures
	}
	if d.Breaker.FailureRatio == 0 {
		d.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if d.Breaker.MinRequests == 0 {
		d.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if d.Breaker.Interval == 0 {
		d.Breaker.Interval = def.Breaker.Interval
	}
	if d.Breaker.OpenTimeout == 0 {
		d.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if d.Cache.TTL == 0 {
		d.Cache.TTL = def.Cache.TTL
	}
	if d.Cache.Size == 0 {
		d.Cache.Size = def.Cache.Size
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if err := c.ClientRegistry.validate("client_registry"); err != nil {
		return err
	}
	if err := c.TaxService.validate("tax_service"); err != nil {
		return err
	}

	if c.Events.KafkaEnabled && len(c.Events.KafkaBrokers) == 0 {
		return fmt.Errorf("events.kafka_brokers is required when events.kafka_enabled is true")
	}

	for _, prefix := range c.Gateway.SortedPrefixes() {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("gateway.routes prefix %q must start with '/'", prefix)
		}
		if _, err := url.ParseRequestURI(c.Gateway.Routes[prefix]); err != nil {
			return fmt.Errorf("gateway.routes[%q] is not a valid URL: %w", prefix, err)
		}
	}

	return nil
}

func (d *DependencyConfig) validate(name string) error {
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s.base_url must be an absolute URL, got %q", name, d.BaseURL)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("%s.timeout cannot be negative", name)
	}
	if d.Breaker.FailureRatio < 0 || d.Breaker.FailureRatio > 1 {
		return fmt.Errorf("%s.breaker.failure_ratio must be between 0.0 and 1.0, got %f", name, d.Breaker.FailureRatio)
	}
	if d.Cache.Size < 0 {
		return fmt.Errorf("%s.cache.size cannot be negative", name)
	}
	return nil
}

// SortedPrefixes returns the route prefixes, longest first, so that the
// most specific route wins when prefixes overlap
func (g *GatewayConfig) SortedPrefixes() []string {
	prefixes := make([]string, 0, len(g.Routes))
	for p := range g.Routes {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return prefixes
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
