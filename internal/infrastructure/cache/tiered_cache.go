package cache

import (
	"context"
	"sync/atomic"
)

// TieredCache implements a two-tier caching strategy
// L1: local expirable LRU (fast, local to the instance)
// L2: Redis (slower, shared across instances)
// Reads go L1 -> L2 and populate L1 on an L2 hit; writes go to both tiers.
type TieredCache[T any] struct {
	l1 *LRUCache[T]
	l2 *RedisCache[T]

	l2Hits   int64
	l2Misses int64
}

// NewTieredCache creates a tiered cache. l2 may be nil, in which case only L1 is used.
func NewTieredCache[T any](l1 *LRUCache[T], l2 *RedisCache[T]) *TieredCache[T] {
	return &TieredCache[T]{l1: l1, l2: l2}
}

// Get retrieves a value from cache (L1 -> L2)
func (c *TieredCache[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := c.l1.Get(ctx, key); ok {
		return v, true
	}
	if c.l2 == nil {
		var zero T
		return zero, false
	}

	v, ok := c.l2.Get(ctx, key)
	if !ok {
		atomic.AddInt64(&c.l2Misses, 1)
		return v, false
	}
	atomic.AddInt64(&c.l2Hits, 1)
	c.l1.Set(ctx, key, v)
	return v, true
}

// Set stores a value in both tiers
func (c *TieredCache[T]) Set(ctx context.Context, key string, value T) {
	c.l1.Set(ctx, key, value)
	if c.l2 != nil {
		c.l2.Set(ctx, key, value)
	}
}

// TieredStats holds the counters of both tiers
type TieredStats struct {
	L1 Stats `json:"l1"`
	L2 Stats `json:"l2"`
}

// Stats returns the hit and miss counters of both tiers
func (c *TieredCache[T]) Stats() TieredStats {
	return TieredStats{
		L1: c.l1.Stats(),
		L2: Stats{
			Hits:   atomic.LoadInt64(&c.l2Hits),
			Misses: atomic.LoadInt64(&c.l2Misses),
		},
	}
}
