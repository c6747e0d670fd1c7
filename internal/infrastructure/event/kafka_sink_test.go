package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaEventSink_WritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaEventSink(w, nil, nil)
	evt := issuedEvent()

	require.NoError(t, sink.Handle(context.Background(), evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, evt.InvoiceID.String(), string(msg.Key))
	assert.Equal(t, kafka.Header{Key: "event_type", Value: []byte(invoicing.EventTypeInvoiceIssued)}, msg.Headers[0])

	decoded, err := NewSerializer().Decode(msg.Value)
	require.NoError(t, err)
	got, ok := decoded.(*invoicing.InvoiceIssuedEvent)
	require.True(t, ok)
	assert.Equal(t, evt.EventID(), got.EventID())
	assert.Equal(t, evt.Number, got.Number)
	assert.Equal(t, int64(7), got.ClientID)
	assert.True(t, evt.GrandTotal.Equals(got.GrandTotal))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaEventSink_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	sink := NewKafkaEventSink(w, nil, zap.NewNop())

	err := sink.Handle(context.Background(), voidedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), invoicing.EventTypeInvoiceVoided)
}

func TestSerializer_UnknownType(t *testing.T) {
	_, err := NewSerializer().Decode([]byte(`{"type":"invoice.paid","payload":{}}`))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = NewSerializer().Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestAuditLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewAuditLogHandler(zap.New(core))
	assert.ElementsMatch(t, []string{invoicing.EventTypeInvoiceIssued, invoicing.EventTypeInvoiceVoided}, h.EventTypes())

	require.NoError(t, h.Handle(context.Background(), voidedEvent()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, invoicing.EventTypeInvoiceVoided, fields["event_type"])
	assert.Equal(t, "Wrong client", fields["reason"])
	assert.Equal(t, int64(7), fields["client_id"])
}
