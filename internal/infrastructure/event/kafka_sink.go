package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the subset of kafka.Writer used by the sink
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventSink forwards invoice events to a Kafka topic, keyed by invoice id
// so that the events of one invoice stay ordered within a partition.
type KafkaEventSink struct {
	writer     Writer
	serializer *Serializer
	logger     *zap.Logger
}

var _ shared.EventHandler = (*KafkaEventSink)(nil)

// NewKafkaWriter builds a synchronous writer for brokers and topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaEventSink creates a sink over w
func NewKafkaEventSink(w Writer, serializer *Serializer, logger *zap.Logger) *KafkaEventSink {
	if serializer == nil {
		serializer = NewSerializer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaEventSink{writer: w, serializer: serializer, logger: logger}
}

// EventTypes implements shared.EventHandler
func (s *KafkaEventSink) EventTypes() []string {
	return []string{invoicing.EventTypeInvoiceIssued, invoicing.EventTypeInvoiceVoided}
}

// Handle implements shared.EventHandler
func (s *KafkaEventSink) Handle(ctx context.Context, evt shared.DomainEvent) error {
	value, err := s.serializer.Encode(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID().String()),
		Value: value,
		Time:  evt.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType())},
			{Key: "event_id", Value: []byte(evt.EventID().String())},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to kafka: %w", evt.EventType(), err)
	}
	s.logger.Debug("Event forwarded to kafka",
		zap.String("event_type", evt.EventType()),
		zap.String("event_id", evt.EventID().String()),
	)
	return nil
}

// Close flushes and closes the writer
func (s *KafkaEventSink) Close() error {
	return s.writer.Close()
}
