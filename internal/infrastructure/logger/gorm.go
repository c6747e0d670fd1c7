package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is used when NewSQLLogger gets a zero threshold.
const DefaultSlowQuery = 200 * time.Millisecond

// SQLLogger routes gorm output through zap with request correlation.
// Record-not-found is never logged: repositories translate it to a domain
// NotFound error. Unique violations are warnings because a replayed
// idempotency key ends in one.
type SQLLogger struct {
	logger *zap.Logger
	level  gormlogger.LogLevel
	slow   time.Duration
}

var _ gormlogger.Interface = (*SQLLogger)(nil)

// NewSQLLogger builds a gorm logger for an application log level name.
func NewSQLLogger(base *zap.Logger, level string, slow time.Duration) *SQLLogger {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &SQLLogger{logger: base.Named("sql"), level: GormLevel(level), slow: slow}
}

// GormLevel maps an application log level name to gorm's level. Debug and
// info enable statement logging; anything unknown keeps warnings.
func GormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *SQLLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		WithTraceContext(ctx, l.logger).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		WithTraceContext(ctx, l.logger).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *SQLLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		WithTraceContext(ctx, l.logger).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent || errors.Is(err, gormlogger.ErrRecordNotFound) {
		return
	}

	elapsed := time.Since(begin)
	stmt, rows := fc()
	log := WithTraceContext(ctx, l.logger)
	fields := []zap.Field{
		zap.String("sql", stmt),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}

	switch {
	case err != nil && errors.Is(err, gorm.ErrDuplicatedKey):
		if l.level >= gormlogger.Warn {
			log.Warn("Unique constraint violated", append(fields, zap.Error(err))...)
		}
	case err != nil:
		log.Error("Statement failed", append(fields, zap.Error(err))...)
	case elapsed >= l.slow && l.level >= gormlogger.Warn:
		log.Warn("Slow statement", append(fields, zap.Duration("threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		log.Debug("Statement", fields...)
	}
}
