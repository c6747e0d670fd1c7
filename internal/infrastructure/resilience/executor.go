package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds a single remote call when no timeout is configured
const DefaultCallTimeout = 5 * time.Second

// Cache is the fallback store an Executor consults while its breaker is open
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
}

// Call is a remote invocation guarded by an Executor
type Call[T any] func(ctx context.Context) (T, error)

// Executor runs remote calls through a breaker with a per-call timeout.
// Successful results are stored in the cache; cached values are only
// served while the breaker refuses calls.
type Executor[T any] struct {
	breaker *Breaker
	cache   Cache[T]
	timeout time.Duration
	logger  *zap.Logger
	metrics Metrics
}

// ExecutorOption configures an Executor
type ExecutorOption[T any] func(*Executor[T])

// WithCache sets the fallback cache
func WithCache[T any](c Cache[T]) ExecutorOption[T] {
	return func(e *Executor[T]) {
		e.cache = c
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout[T any](d time.Duration) ExecutorOption[T] {
	return func(e *Executor[T]) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger[T any](logger *zap.Logger) ExecutorOption[T] {
	return func(e *Executor[T]) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics[T any](m Metrics) ExecutorOption[T] {
	return func(e *Executor[T]) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewExecutor creates an executor bound to the given breaker
func NewExecutor[T any](breaker *Breaker, opts ...ExecutorOption[T]) *Executor[T] {
	e := &Executor[T]{
		breaker: breaker,
		timeout: DefaultCallTimeout,
		logger:  zap.NewNop(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breaker returns the breaker guarding this executor
func (e *Executor[T]) Breaker() *Breaker {
	return e.breaker
}

// Execute runs call unless the breaker is open. While open (or while the
// half-open trial is in flight) the cached value for key is returned if
// present, otherwise a DownstreamUnavailable error. Call failures are
// classified into DownstreamTimeout or DownstreamUnavailable; caller
// cancellation is returned unchanged.
func (e *Executor[T]) Execute(ctx context.Context, key string, call Call[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	dep := e.breaker.Name()
	start := time.Now()
	res, err := e.breaker.cb.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		v, callErr := call(callCtx)
		if callErr != nil {
			return nil, e.classify(ctx, callErr)
		}
		return v, nil
	})

	if err != nil {
		if isRejection(err) {
			e.metrics.BreakerRejected(ctx, dep)
			if cached, ok := e.lookup(ctx, key); ok {
				e.logger.Info("Serving cached value while circuit is open",
					zap.String("dependency", dep),
					zap.String("key", key),
				)
				return cached, nil
			}
			return zero, shared.NewDownstreamError(shared.DownstreamUnavailable, dep, err)
		}
		e.metrics.CallCompleted(ctx, dep, outcomeOf(err), time.Since(start))
		return zero, err
	}

	e.metrics.CallCompleted(ctx, dep, "success", time.Since(start))
	v, _ := res.(T)
	if e.cache != nil && key != "" {
		e.cache.Set(ctx, key, v)
	}
	return v, nil
}

func (e *Executor[T]) lookup(ctx context.Context, key string) (T, bool) {
	var zero T
	if e.cache == nil || key == "" {
		return zero, false
	}
	v, ok := e.cache.Get(ctx, key)
	e.metrics.CacheLookup(ctx, e.breaker.Name(), ok)
	return v, ok
}

// classify maps a failed call to the error returned to the caller
func (e *Executor[T]) classify(parent context.Context, err error) error {
	dep := e.breaker.Name()

	// The caller gave up; this is not a dependency failure.
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}

	var de *shared.DownstreamError
	if errors.As(err, &de) {
		return err
	}

	kind := Classify(err)
	e.logger.Warn("Downstream call failed",
		zap.String("dependency", dep),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return shared.NewDownstreamError(kind, dep, err)
}

// Classify maps a transport error to a downstream failure kind.
// Timeouts are recognised from context deadlines and net.Error; every
// other failure is reported as unavailable.
func Classify(err error) shared.DownstreamKind {
	if IsTimeout(err) {
		return shared.DownstreamTimeout
	}
	return shared.DownstreamUnavailable
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsConnectionFailure reports whether err is a refused, reset or unreachable connection
func IsConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case shared.IsDownstreamKind(err, shared.DownstreamTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}
