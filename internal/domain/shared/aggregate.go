package shared

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot carries identity, timestamps and the optimistic-lock version
// of an aggregate, plus the events it raised since they were last drained.
// A zero ID means the aggregate has not been stored yet.
type AggregateRoot struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int

	pending []DomainEvent
}

// NewAggregateRoot starts a transient aggregate at version 1.
func NewAggregateRoot(now time.Time) AggregateRoot {
	return AggregateRoot{CreatedAt: now, UpdatedAt: now, Version: 1}
}

// RestoreAggregateRoot rebuilds the root of a stored aggregate.
func RestoreAggregateRoot(id uuid.UUID, createdAt, updatedAt time.Time, version int) AggregateRoot {
	return AggregateRoot{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt, Version: version}
}

// Touch records a state change at now. Stores accept the change only while
// the stored version is still Version-1.
func (a *AggregateRoot) Touch(now time.Time) {
	a.UpdatedAt = now
	a.Version++
}

// Record queues evt for publication after the next commit.
func (a *AggregateRoot) Record(evt DomainEvent) {
	a.pending = append(a.pending, evt)
}

// PendingEvents returns the queued events without removing them.
func (a *AggregateRoot) PendingEvents() []DomainEvent {
	return a.pending
}

// DrainEvents returns the queued events and empties the queue.
func (a *AggregateRoot) DrainEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}

// AssignID sets the identity handed out by storage and binds it into every
// queued event raised while the aggregate was transient.
func (a *AggregateRoot) AssignID(id uuid.UUID) {
	a.ID = id
	for _, evt := range a.pending {
		if b, ok := evt.(AggregateBinder); ok {
			b.BindAggregate(id)
		}
	}
}

// IsPersisted reports whether storage has assigned an identity.
func (a *AggregateRoot) IsPersisted() bool {
	return a.ID != uuid.Nil
}
