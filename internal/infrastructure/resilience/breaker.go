// Package resilience guards calls to remote dependencies with a circuit breaker,
// a per-call timeout and an optional cache used as fallback while the circuit is open.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker states as reported by State
const (
	StateClosed   = "closed"
	StateHalfOpen = "half-open"
	StateOpen     = "open"
)

// BreakerConfig holds the failure accounting policy of one dependency
type BreakerConfig struct {
	// Name identifies the dependency, e.g. "client-registry"
	Name string
	// ConsecutiveFailures trips the breaker regardless of the failure ratio
	ConsecutiveFailures uint32
	// FailureRatio trips the breaker once MinRequests were observed in the window
	FailureRatio float64
	MinRequests  uint32
	// Interval is the rolling window after which closed-state counts are cleared
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before allowing a trial call
	OpenTimeout time.Duration
}

// DefaultBreakerConfig returns the default policy for a dependency
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         5,
		Interval:            60 * time.Second,
		OpenTimeout:         30 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig(c.Name)
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = d.ConsecutiveFailures
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = d.FailureRatio
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	return c
}

// readyToTrip reports whether the closed-state counts should open the breaker
func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	counted := counts.TotalSuccesses + counts.TotalFailures
	if counted < c.MinRequests {
		return false
	}
	ratio := float64(counts.TotalFailures) / float64(counted)
	return ratio >= c.FailureRatio
}

// Breaker is the process-wide circuit breaker of one dependency.
// It is safe for concurrent use.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
	metrics Metrics
}

// BreakerOption configures a Breaker
type BreakerOption func(*Breaker)

// WithBreakerLogger sets the logger used for state transitions
func WithBreakerLogger(logger *zap.Logger) BreakerOption {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBreakerMetrics sets the metrics recorder
func WithBreakerMetrics(m Metrics) BreakerOption {
	return func(b *Breaker) {
		if m != nil {
			b.metrics = m
		}
	}
}

// NewBreaker creates a breaker for the given policy.
// Half-open admits exactly one trial call.
func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		name:    cfg.Name,
		logger:  zap.NewNop(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: cfg.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			fields := []zap.Field{
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			}
			if to == gobreaker.StateOpen {
				b.logger.Warn("Circuit breaker opened", fields...)
			} else {
				b.logger.Info("Circuit breaker state changed", fields...)
			}
			b.metrics.BreakerStateChanged(name, from.String(), to.String())
		},
		IsExcluded: isExcluded,
	})
	return b
}

// isExcluded keeps caller cancellation out of the counts: it neither
// resets the consecutive failures nor settles a half-open trial.
func isExcluded(err error) bool {
	var de *shared.DownstreamError
	if errors.As(err, &de) {
		return false
	}
	return errors.Is(err, context.Canceled)
}

// Name returns the dependency name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state: closed, half-open or open
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts returns the counts of the current window
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// isRejection reports whether the breaker refused to run the call
func isRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
