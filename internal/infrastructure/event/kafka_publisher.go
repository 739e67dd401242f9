package event

import (
	"context"
	"fmt"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka header names carried on every message
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderAggregateType = "aggregate_type"
	HeaderOrganization  = "organization_id"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisherConfig holds Kafka publisher settings
type KafkaPublisherConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaPublisher forwards domain events to a Kafka topic. It is registered on
// the in-memory bus as a wildcard handler. Messages are keyed by aggregate ID
// so the events of one order stay ordered within a partition.
type KafkaPublisher struct {
	writer     MessageWriter
	serializer *EventSerializer
	topic      string
	logger     *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic
func NewKafkaPublisher(cfg KafkaPublisherConfig, serializer *EventSerializer, logger *zap.Logger) *KafkaPublisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return NewKafkaPublisherWithWriter(writer, cfg.Topic, serializer, logger)
}

// NewKafkaPublisherWithWriter creates a publisher over an existing writer
func NewKafkaPublisherWithWriter(writer MessageWriter, topic string, serializer *EventSerializer, logger *zap.Logger) *KafkaPublisher {
	if serializer == nil {
		serializer = NewEventSerializer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer:     writer,
		serializer: serializer,
		topic:      topic,
		logger:     logger.Named("kafka"),
	}
}

// Handle writes one event to Kafka
func (p *KafkaPublisher) Handle(ctx context.Context, event shared.DomainEvent) error {
	return p.Publish(ctx, event)
}

// EventTypes returns nil: the publisher forwards every event
func (p *KafkaPublisher) EventTypes() []string {
	return nil
}

// Publish writes events as one batch
func (p *KafkaPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := p.serializer.Serialize(e)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", e.EventType(), err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID().String()),
			Value: payload,
			Time:  e.OccurredAt(),
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(e.EventType())},
				{Key: HeaderEventID, Value: []byte(e.EventID().String())},
				{Key: HeaderAggregateType, Value: []byte(e.AggregateType())},
				{Key: HeaderOrganization, Value: []byte(e.OrganizationID().String())},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d events to %s: %w", len(msgs), p.topic, err)
	}

	p.logger.Debug("published events",
		zap.String("topic", p.topic),
		zap.Int("count", len(msgs)),
	)
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var (
	_ shared.EventHandler   = (*KafkaPublisher)(nil)
	_ shared.EventPublisher = (*KafkaPublisher)(nil)
)
