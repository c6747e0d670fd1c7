package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory creates caches based on configuration. When Redis is enabled and
// reachable, caches are tiered (LRU + Redis); otherwise they are LRU only.
type Factory struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and the caches it creates
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRedisClient uses an existing Redis client as L2
func WithRedisClient(client *redis.Client) FactoryOption {
	return func(f *Factory) {
		f.client = client
	}
}

// NewFactory creates a cache factory. If Redis is enabled but unreachable the
// factory falls back to in-memory caches and logs a warning.
func NewFactory(ctx context.Context, redisCfg config.RedisConfig, cacheCfg config.CacheConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		keyPrefix: cacheCfg.KeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.client != nil || !cacheCfg.RedisEnabled {
		return f
	}

	client, err := NewRedisClient(ctx, RedisConfig{
		Host:     redisCfg.Host,
		Port:     redisCfg.Port,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if err != nil {
		f.logger.Warn("Redis unavailable, falling back to in-memory caches. "+
			"Cached answers will not be shared across instances.",
			zap.Error(err),
		)
		return f
	}
	f.logger.Info("Using tiered caches with Redis",
		zap.String("addr", fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port)))
	f.client = client
	return f
}

// Client returns the Redis client, or nil when caches are in-memory only
func (f *Factory) Client() *redis.Client {
	return f.client
}

// Close releases the Redis connection
func (f *Factory) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// New creates a named cache of values of type T
func New[T any](f *Factory, name string, size int, ttl time.Duration) *TieredCache[T] {
	l1 := NewLRUCache[T](size, ttl)
	if f == nil || f.client == nil {
		return NewTieredCache[T](l1, nil)
	}
	l2 := NewRedisCache[T](f.client, f.keyPrefix+name+":", ttl, f.logger.With(zap.String("cache", name)))
	return NewTieredCache(l1, l2)
}
