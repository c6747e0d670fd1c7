package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls query tracing and metrics
type DBConfig struct {
	TraceEnabled bool
	// LogFullSQL keeps bound variables in span statements; never in production
	LogFullSQL         bool
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

func (c DBConfig) withDefaults() DBConfig {
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	if c.PoolStatsInterval <= 0 {
		c.PoolStatsInterval = 15 * time.Second
	}
	return c
}

type queryStartKey struct{}

// DBPlugin is a gorm plugin that times every statement, counts it, flags slow
// queries on the active span and, when tracing is on, installs otelgorm.
type DBPlugin struct {
	cfg    DBConfig
	logger *zap.Logger

	queries   *Counter
	duration  *Histogram
	slow      *Counter
	poolConns *Gauge

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

var _ gorm.Plugin = (*DBPlugin)(nil)

// NewDBPlugin creates the plugin and its instruments on meter
func NewDBPlugin(meter metric.Meter, cfg DBConfig, logger *zap.Logger) (*DBPlugin, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &DBPlugin{cfg: cfg.withDefaults(), logger: logger, stop: make(chan struct{})}

	var err error
	if p.queries, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
		return nil, err
	}
	if p.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if p.slow, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the threshold", "{query}"); err != nil {
		return nil, err
	}
	if p.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements gorm.Plugin
func (p *DBPlugin) Name() string {
	return "invoicing:db_telemetry"
}

// Initialize implements gorm.Plugin
func (p *DBPlugin) Initialize(db *gorm.DB) error {
	if p.cfg.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName("invoicing")}
		if !p.cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	type register func(name string, fn func(*gorm.DB)) error
	cb := db.Callback()
	hooks := []struct {
		op            string
		before, after register
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("db_telemetry:before_"+h.op, p.before); err != nil {
			return err
		}
		if err := h.after("db_telemetry:after_"+h.op, p.after); err != nil {
			return err
		}
	}

	p.logger.Info("Database telemetry registered",
		zap.Bool("tracing", p.cfg.TraceEnabled),
		zap.Duration("slow_query_threshold", p.cfg.SlowQueryThreshold),
	)
	return nil
}

func (p *DBPlugin) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (p *DBPlugin) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	op := operationOf(db.Statement.SQL.String())
	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}

	p.queries.Inc(ctx, AttrDBOperation.String(op))
	p.duration.RecordDuration(ctx, elapsed, AttrDBOperation.String(op))

	span := trace.SpanFromContext(ctx)
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}
	if elapsed <= p.cfg.SlowQueryThreshold {
		return
	}
	p.slow.Inc(ctx, AttrDBTable.String(table))
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
	p.logger.Warn("Slow query",
		zap.String("table", table),
		zap.String("operation", op),
		zap.Duration("elapsed", elapsed),
	)
}

// operationOf extracts the statement verb from rendered SQL
func operationOf(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	verb, _, _ := strings.Cut(stmt, " ")
	switch v := strings.ToUpper(verb); v {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return v
	case "":
		return "UNKNOWN"
	default:
		return "OTHER"
	}
}

// StartPoolStats samples connection pool usage until Stop or ctx is done
func (p *DBPlugin) StartPoolStats(ctx context.Context, sqlDB *sql.DB) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.PoolStatsInterval)
		defer ticker.Stop()
		for {
			p.recordPool(ctx, sqlDB.Stats())
			select {
			case <-ticker.C:
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *DBPlugin) recordPool(ctx context.Context, s sql.DBStats) {
	p.poolConns.Record(ctx, int64(s.Idle), AttrDBPoolState.String("idle"))
	p.poolConns.Record(ctx, int64(s.InUse), AttrDBPoolState.String("in_use"))
	p.poolConns.Record(ctx, int64(s.MaxOpenConnections), AttrDBPoolState.String("max"))
}

// Stop ends pool sampling. Safe to call more than once.
func (p *DBPlugin) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
}
