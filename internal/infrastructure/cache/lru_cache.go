package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a keyed store of values of type T with per-entry expiry.
// Lookups never fail: a storage problem is reported as a miss.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
}

// Stats holds hit and miss counters of a cache tier
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// LRUCache is an in-process, size-bounded cache whose entries expire after a fixed TTL.
// It is safe for concurrent use.
type LRUCache[T any] struct {
	lru    *expirable.LRU[string, T]
	hits   int64
	misses int64
}

// NewLRUCache creates an in-memory cache holding at most size entries for ttl each
func NewLRUCache[T any](size int, ttl time.Duration) *LRUCache[T] {
	if size <= 0 {
		size = 1000
	}
	return &LRUCache[T]{
		lru: expirable.NewLRU[string, T](size, nil, ttl),
	}
}

// Get returns the value for key if present and not expired
func (c *LRUCache[T]) Get(_ context.Context, key string) (T, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return v, ok
}

// Set stores value under key, evicting the least recently used entry when full
func (c *LRUCache[T]) Set(_ context.Context, key string, value T) {
	c.lru.Add(key, value)
}

// Delete removes key
func (c *LRUCache[T]) Delete(_ context.Context, key string) {
	c.lru.Remove(key)
}

// Len returns the number of entries, expired ones included until they are purged
func (c *LRUCache[T]) Len() int {
	return c.lru.Len()
}

// Purge removes all entries
func (c *LRUCache[T]) Purge() {
	c.lru.Purge()
}

// Stats returns the hit and miss counters
func (c *LRUCache[T]) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}
