package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key. Idle keys are evicted after
// the configured TTL, and at most maxKeys buckets are tracked.
type RateLimiter struct {
	buckets *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewRateLimiter allows burst requests at once, refilled at
// requestsPerSecond.
func NewRateLimiter(requestsPerSecond float64, burst, maxKeys int, idleTTL time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, idleTTL),
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if l, ok := rl.buckets.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets.Add(key, l)
	return l
}

// Allow consumes a token for key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).Allow()
}

// Remaining returns the whole tokens left for key
func (rl *RateLimiter) Remaining(key string) int {
	if l, ok := rl.buckets.Peek(key); ok {
		return int(l.Tokens())
	}
	return rl.burst
}

// RateLimit limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByKey limits requests per key. Rejections are attached as a 429
// for the FailureTranslator.
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			_ = c.Error(dto.NewStatusError(http.StatusTooManyRequests, "Too many requests, retry later"))
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
		c.Next()
	}
}
