package event

import (
	"context"
	"fmt"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxRecorder writes domain events to the outbox inside the caller's
// transaction, so an event exists exactly when its aggregate change committed
type OutboxRecorder struct {
	serializer *EventSerializer
	clock      func() time.Time
}

// NewOutboxRecorder creates a new OutboxRecorder
func NewOutboxRecorder(serializer *EventSerializer) *OutboxRecorder {
	return &OutboxRecorder{
		serializer: serializer,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordEvents serializes events and inserts them through tx
func (p *OutboxRecorder) RecordEvents(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := p.clock()
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		if !p.serializer.IsRegistered(event.EventType()) {
			return fmt.Errorf("event type %s is not registered for the outbox", event.EventType())
		}
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", event.EventType(), err)
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload, now))
	}

	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}
