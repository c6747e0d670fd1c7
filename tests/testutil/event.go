package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
)

// EventRecorder is a shared.EventHandler that keeps what it receives.
type EventRecorder struct {
	types []string

	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

// NewEventRecorder subscribes to eventTypes, or to everything when none are given.
func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{types: eventTypes}
}

func (r *EventRecorder) EventTypes() []string { return r.types }

func (r *EventRecorder) Handle(_ context.Context, evt shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

// FailWith makes later Handle calls return err after recording the event.
func (r *EventRecorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events in arrival order.
func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.DomainEvent(nil), r.events...)
}

// WaitFor reports whether at least n events arrive within timeout.
func (r *EventRecorder) WaitFor(t *testing.T, n int, timeout time.Duration) bool {
	t.Helper()
	return Eventually(t, func() bool { return len(r.Events()) >= n }, timeout, 5*time.Millisecond)
}
