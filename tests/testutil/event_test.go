package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type probeEvent struct {
	shared.EventMeta
}

func TestEventRecorder(t *testing.T) {
	rec := NewEventRecorder("invoice.issued")
	assert.Equal(t, []string{"invoice.issued"}, rec.EventTypes())

	evt := &probeEvent{EventMeta: shared.NewEventMeta("invoice.issued", "Invoice", uuid.New(), time.Now())}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = rec.Handle(context.Background(), evt)
	}()
	assert.True(t, rec.WaitFor(t, 1, time.Second))

	boom := errors.New("sink down")
	rec.FailWith(boom)
	assert.ErrorIs(t, rec.Handle(context.Background(), evt), boom)
	assert.Len(t, rec.Events(), 2)
	assert.False(t, rec.WaitFor(t, 3, 20*time.Millisecond))
}
