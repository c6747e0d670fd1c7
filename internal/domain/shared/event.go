package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
}

// AggregateBinder is implemented by events that can be raised before their
// aggregate has an identity.
type AggregateBinder interface {
	BindAggregate(id uuid.UUID)
}

// EventMeta is embedded by concrete events to satisfy DomainEvent.
type EventMeta struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	At      time.Time `json:"occurred_at"`
	AggID   uuid.UUID `json:"aggregate_id"`
	AggType string    `json:"aggregate_type"`
}

// NewEventMeta stamps a new event id. at is the time of the state change,
// not the time of publication.
func NewEventMeta(eventType, aggType string, aggID uuid.UUID, at time.Time) EventMeta {
	return EventMeta{
		ID:      uuid.New(),
		Type:    eventType,
		At:      at.UTC(),
		AggID:   aggID,
		AggType: aggType,
	}
}

func (m *EventMeta) EventID() uuid.UUID     { return m.ID }
func (m *EventMeta) EventType() string      { return m.Type }
func (m *EventMeta) OccurredAt() time.Time  { return m.At }
func (m *EventMeta) AggregateID() uuid.UUID { return m.AggID }
func (m *EventMeta) AggregateType() string  { return m.AggType }

// BindAggregate fills in the aggregate id if it is still unset.
func (m *EventMeta) BindAggregate(id uuid.UUID) {
	if m.AggID == uuid.Nil {
		m.AggID = id
	}
}
