package resilience

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mapCache[T any] struct {
	mu   sync.Mutex
	data map[string]T
}

func newMapCache[T any]() *mapCache[T] {
	return &mapCache[T]{data: make(map[string]T)}
}

func (c *mapCache[T]) Get(_ context.Context, key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache[T]) Set(_ context.Context, key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

type recordingMetrics struct {
	NoopMetrics
	mu          sync.Mutex
	transitions []string
	rejected    int
}

func (m *recordingMetrics) BreakerStateChanged(_, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

func (m *recordingMetrics) BreakerRejected(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func testBreaker(t *testing.T, m Metrics) *Breaker {
	t.Helper()
	return NewBreaker(BreakerConfig{
		Name:                "tax-service",
		ConsecutiveFailures: 3,
		FailureRatio:        0.5,
		MinRequests:         10,
		Interval:            time.Minute,
		OpenTimeout:         50 * time.Millisecond,
	}, WithBreakerLogger(zaptest.NewLogger(t)), WithBreakerMetrics(m))
}

var errBoom = errors.New("upstream returned 500")

func failing(calls *int32) Call[string] {
	return func(ctx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return "", errBoom
	}
}

func succeeding(calls *int32, v string) Call[string] {
	return func(ctx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return v, nil
	}
}

func TestExecutor_Success(t *testing.T) {
	cache := newMapCache[string]()
	exec := NewExecutor[string](testBreaker(t, nil), WithCache[string](cache))

	var calls int32
	v, err := exec.Execute(context.Background(), "k", succeeding(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	cached, ok := cache.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, "ok", cached)
}

func TestExecutor_ClosedBreakerAlwaysCalls(t *testing.T) {
	cache := newMapCache[string]()
	cache.Set(context.Background(), "k", "stale")
	exec := NewExecutor[string](testBreaker(t, nil), WithCache[string](cache))

	var calls int32
	v, err := exec.Execute(context.Background(), "k", succeeding(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecutor_FailureIsUnavailable(t *testing.T) {
	exec := NewExecutor[string](testBreaker(t, nil), WithLogger[string](zaptest.NewLogger(t)))

	var calls int32
	_, err := exec.Execute(context.Background(), "k", failing(&calls))
	require.Error(t, err)

	var de *shared.DownstreamError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, shared.DownstreamUnavailable, de.Kind)
	assert.Equal(t, "tax-service", de.Dependency)
	assert.ErrorIs(t, err, errBoom)
	assert.NotContains(t, de.PublicMessage(), "500")
}

func TestExecutor_Timeout(t *testing.T) {
	exec := NewExecutor[string](testBreaker(t, nil), WithTimeout[string](20*time.Millisecond))

	_, err := exec.Execute(context.Background(), "k", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	assert.True(t, shared.IsDownstreamKind(err, shared.DownstreamTimeout))
	assert.Equal(t, uint32(1), exec.Breaker().Counts().TotalFailures)
}

// cancelledMidCall cancels the caller's context while the call is in flight
func cancelledMidCall(calls *int32, cancel context.CancelFunc) Call[string] {
	return func(callCtx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		cancel()
		<-callCtx.Done()
		return "", callCtx.Err()
	}
}

func TestExecutor_CallerCancellationIsNotAFailure(t *testing.T) {
	exec := NewExecutor[string](testBreaker(t, nil))

	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	_, err := exec.Execute(ctx, "k", cancelledMidCall(&calls, cancel))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, shared.IsDownstreamKind(err, shared.DownstreamUnavailable))

	counts := exec.Breaker().Counts()
	assert.Zero(t, counts.TotalFailures)
	assert.Zero(t, counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalExclusions)

	_, err = exec.Execute(ctx, "k", func(context.Context) (string, error) {
		t.Fatal("must not be called with a cancelled context")
		return "", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutor_CancellationKeepsConsecutiveFailures(t *testing.T) {
	breaker := testBreaker(t, nil)
	exec := NewExecutor[string](breaker)

	var calls int32
	for i := 0; i < 2; i++ {
		_, err := exec.Execute(context.Background(), "k", failing(&calls))
		require.Error(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := exec.Execute(ctx, "k", cancelledMidCall(&calls, cancel))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(2), breaker.Counts().ConsecutiveFailures)
	assert.Equal(t, StateClosed, breaker.State())

	_, err = exec.Execute(context.Background(), "k", failing(&calls))
	require.Error(t, err)
	assert.Equal(t, StateOpen, breaker.State())
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestExecutor_CancelledTrialLeavesBreakerHalfOpen(t *testing.T) {
	metrics := &recordingMetrics{}
	breaker := testBreaker(t, metrics)
	exec := NewExecutor[string](breaker)

	var calls int32
	for i := 0; i < 3; i++ {
		_, _ = exec.Execute(context.Background(), "k", failing(&calls))
	}
	time.Sleep(70 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := exec.Execute(ctx, "k", cancelledMidCall(&calls, cancel))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, breaker.State())

	t.Run("the next call is admitted as the trial", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), "k", failing(&calls))
		assert.True(t, shared.IsDownstreamKind(err, shared.DownstreamUnavailable))
		assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
		assert.Equal(t, StateOpen, breaker.State())
	})

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->open"}, metrics.transitions)
}

func TestExecutor_OpensAfterConsecutiveFailures(t *testing.T) {
	metrics := &recordingMetrics{}
	breaker := testBreaker(t, metrics)
	exec := NewExecutor[string](breaker)

	var calls int32
	for i := 0; i < 3; i++ {
		_, err := exec.Execute(context.Background(), "k", failing(&calls))
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, breaker.State())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	t.Run("open breaker fails fast without calling", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), "k", failing(&calls))
		assert.True(t, shared.IsDownstreamKind(err, shared.DownstreamUnavailable))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, 1, metrics.rejected)
	})

	t.Run("successful trial after reset closes the breaker", func(t *testing.T) {
		time.Sleep(70 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, breaker.State())

		v, err := exec.Execute(context.Background(), "k", succeeding(&calls, "back"))
		require.NoError(t, err)
		assert.Equal(t, "back", v)
		assert.Equal(t, StateClosed, breaker.State())
	})

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, metrics.transitions)
}

func TestExecutor_FailedTrialReopens(t *testing.T) {
	breaker := testBreaker(t, nil)
	exec := NewExecutor[string](breaker)

	var calls int32
	for i := 0; i < 3; i++ {
		_, _ = exec.Execute(context.Background(), "k", failing(&calls))
	}
	time.Sleep(70 * time.Millisecond)

	_, err := exec.Execute(context.Background(), "k", failing(&calls))
	require.Error(t, err)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestExecutor_OpenBreakerServesCache(t *testing.T) {
	cache := newMapCache[string]()
	exec := NewExecutor[string](testBreaker(t, nil), WithCache[string](cache))

	var calls int32
	_, err := exec.Execute(context.Background(), "client-42", succeeding(&calls, "active"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _ = exec.Execute(context.Background(), "client-42", failing(&calls))
	}
	require.Equal(t, StateOpen, exec.Breaker().State())

	v, err := exec.Execute(context.Background(), "client-42", failing(&calls))
	require.NoError(t, err)
	assert.Equal(t, "active", v)

	_, err = exec.Execute(context.Background(), "client-7", failing(&calls))
	assert.True(t, shared.IsDownstreamKind(err, shared.DownstreamUnavailable))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestBreaker_FailureRatioTrips(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{
		Name:                "client-registry",
		ConsecutiveFailures: 100,
		FailureRatio:        0.5,
		MinRequests:         4,
		Interval:            time.Minute,
		OpenTimeout:         time.Minute,
	})
	exec := NewExecutor[string](breaker)

	var calls int32
	_, _ = exec.Execute(context.Background(), "", succeeding(&calls, "a"))
	_, _ = exec.Execute(context.Background(), "", failing(&calls))
	_, _ = exec.Execute(context.Background(), "", succeeding(&calls, "b"))
	assert.Equal(t, StateClosed, breaker.State())
	_, _ = exec.Execute(context.Background(), "", failing(&calls))
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreaker_FailureRatioIgnoresCancellations(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{
		Name:                "client-registry",
		ConsecutiveFailures: 100,
		FailureRatio:        0.5,
		MinRequests:         4,
		Interval:            time.Minute,
		OpenTimeout:         time.Minute,
	})
	exec := NewExecutor[string](breaker)

	var calls int32
	_, _ = exec.Execute(context.Background(), "", succeeding(&calls, "a"))
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, _ = exec.Execute(ctx, "", cancelledMidCall(&calls, cancel))
	}
	_, _ = exec.Execute(context.Background(), "", failing(&calls))
	assert.Equal(t, StateClosed, breaker.State(), "two counted calls are below MinRequests")

	_, _ = exec.Execute(context.Background(), "", succeeding(&calls, "b"))
	_, _ = exec.Execute(context.Background(), "", failing(&calls))
	assert.Equal(t, StateOpen, breaker.State())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want shared.DownstreamKind
	}{
		{"deadline", context.DeadlineExceeded, shared.DownstreamTimeout},
		{"wrapped deadline", errors.Join(errBoom, context.DeadlineExceeded), shared.DownstreamTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, shared.DownstreamTimeout},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, shared.DownstreamUnavailable},
		{"other", errBoom, shared.DownstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}

	assert.True(t, IsConnectionFailure(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, IsConnectionFailure(&net.DNSError{Err: "no such host", Name: "tax"}))
	assert.False(t, IsConnectionFailure(errBoom))
}
