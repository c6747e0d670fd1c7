package telemetry

import (
	"context"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"go.opentelemetry.io/otel/metric"
)

// ResilienceMetrics records circuit breaker, remote call and cache activity
// of the guarded dependencies.
type ResilienceMetrics struct {
	transitions  *Counter
	rejections   *Counter
	calls        *Counter
	callDuration *Histogram
	cacheLookups *Counter
}

var _ resilience.Metrics = (*ResilienceMetrics)(nil)

// NewResilienceMetrics creates the instruments on meter
func NewResilienceMetrics(meter metric.Meter) (*ResilienceMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	var (
		m   ResilienceMetrics
		err error
	)
	if m.transitions, err = NewCounter(meter, "invoicing_breaker_transitions_total",
		"Circuit breaker state transitions", "{transition}"); err != nil {
		return nil, err
	}
	if m.rejections, err = NewCounter(meter, "invoicing_breaker_rejections_total",
		"Calls refused while the circuit was open", "{call}"); err != nil {
		return nil, err
	}
	if m.calls, err = NewCounter(meter, "invoicing_remote_calls_total",
		"Remote dependency calls by outcome", "{call}"); err != nil {
		return nil, err
	}
	if m.callDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "invoicing_remote_call_duration_seconds",
		Description: "Remote dependency call latency",
		Unit:        "s",
		Boundaries:  RemoteCallBuckets,
	}); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = NewCounter(meter, "invoicing_cache_lookups_total",
		"Dependency cache lookups by result", "{lookup}"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *ResilienceMetrics) BreakerStateChanged(dependency, from, to string) {
	m.transitions.Inc(context.Background(),
		AttrDependency.String(dependency),
		AttrBreakerFrom.String(from),
		AttrBreakerTo.String(to),
	)
}

func (m *ResilienceMetrics) BreakerRejected(ctx context.Context, dependency string) {
	m.rejections.Inc(ctx, AttrDependency.String(dependency))
}

func (m *ResilienceMetrics) CallCompleted(ctx context.Context, dependency, outcome string, d time.Duration) {
	m.calls.Inc(ctx, AttrDependency.String(dependency), AttrOutcome.String(outcome))
	m.callDuration.RecordDuration(ctx, d, AttrDependency.String(dependency), AttrOutcome.String(outcome))
}

func (m *ResilienceMetrics) CacheLookup(ctx context.Context, dependency string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, AttrDependency.String(dependency), AttrCacheResult.String(result))
}
