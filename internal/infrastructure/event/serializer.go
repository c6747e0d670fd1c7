package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// Envelope is the wire form of a domain event
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Payload       json.RawMessage `json:"payload"`
}

// Serializer encodes events into envelopes and decodes envelopes of known types
type Serializer struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewSerializer creates a serializer that knows the invoice events
func NewSerializer() *Serializer {
	s := &Serializer{types: make(map[string]reflect.Type)}
	s.Register(invoicing.EventTypeInvoiceIssued, &invoicing.InvoiceIssuedEvent{})
	s.Register(invoicing.EventTypeInvoiceVoided, &invoicing.InvoiceVoidedEvent{})
	return s
}

// Register makes eventType decodable into the concrete type of prototype
func (s *Serializer) Register(eventType string, prototype shared.DomainEvent) {
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	s.mu.Lock()
	s.types[eventType] = t
	s.mu.Unlock()
}

// Encode wraps evt in an Envelope and marshals it
func (s *Serializer) Encode(evt shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", evt.EventType(), err)
	}
	return json.Marshal(Envelope{
		ID:            evt.EventID(),
		Type:          evt.EventType(),
		OccurredAt:    evt.OccurredAt().UTC(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		Payload:       payload,
	})
}

// Decode unmarshals an envelope back into its registered event type
func (s *Serializer) Decode(data []byte) (shared.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	s.mu.RLock()
	t, ok := s.types[env.Type]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(env.Payload, ptr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	evt, ok := ptr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("type registered for %s is not a domain event", env.Type)
	}
	return evt, nil
}
