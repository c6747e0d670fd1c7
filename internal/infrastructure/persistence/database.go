package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the invoice store connection pool.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// Option customizes how Open builds the gorm session.
type Option func(*openOptions)

type openOptions struct {
	logger  logger.Interface
	plugins []gorm.Plugin
	ping    bool
}

// WithGormLogger routes statement logging through l.
func WithGormLogger(l logger.Interface) Option {
	return func(o *openOptions) { o.logger = l }
}

// WithPlugins installs plugins before the first statement runs.
func WithPlugins(plugins ...gorm.Plugin) Option {
	return func(o *openOptions) { o.plugins = append(o.plugins, plugins...) }
}

// WithoutPing skips the connectivity check on open.
func WithoutPing() Option {
	return func(o *openOptions) { o.ping = false }
}

// Open connects to PostgreSQL with the pool sized from cfg.
func Open(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	return OpenDialector(postgres.Open(cfg.DSN()), cfg, opts...)
}

// OpenDialector is Open for an arbitrary gorm dialector.
func OpenDialector(dialector gorm.Dialector, cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	o := openOptions{logger: logger.Default.LogMode(logger.Silent), ping: true}
	for _, opt := range opts {
		opt(&o)
	}

	gcfg := GormConfig(o.logger)
	gcfg.DisableAutomaticPing = true
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open invoice store: %w", err)
	}
	for _, p := range o.plugins {
		if err := db.Use(p); err != nil {
			return nil, fmt.Errorf("install gorm plugin %s: %w", p.Name(), err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	configurePool(sqlDB, cfg)

	d := &Database{DB: db, sql: sqlDB}
	if o.ping {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Ping(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping invoice store: %w", err)
		}
	}
	return d, nil
}

func configurePool(db *sql.DB, cfg *config.DatabaseConfig) {
	if cfg == nil {
		return
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}
}

// GormConfig returns the gorm settings shared by every dialect.
// Driver errors are translated so unique violations surface as gorm.ErrDuplicatedKey.
func GormConfig(gormLogger logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

// SQL exposes the pool for stats collection and health checks.
func (d *Database) SQL() *sql.DB { return d.sql }

func (d *Database) Close() error { return d.sql.Close() }

// Ping satisfies the health check signature.
func (d *Database) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}
