package resilience

import (
	"context"
	"time"
)

// Metrics records resilience events. Implementations must be safe for concurrent use.
type Metrics interface {
	BreakerStateChanged(dependency, from, to string)
	BreakerRejected(ctx context.Context, dependency string)
	CallCompleted(ctx context.Context, dependency, outcome string, d time.Duration)
	CacheLookup(ctx context.Context, dependency string, hit bool)
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) BreakerStateChanged(string, string, string) {}
func (NoopMetrics) BreakerRejected(context.Context, string) {}
func (NoopMetrics) CallCompleted(context.Context, string, string, time.Duration) {}
func (NoopMetrics) CacheLookup(context.Context, string, bool) {}
