package event

import (
	"context"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
)

// Relay is the publisher the outbox processor delivers to. Each event goes to
// the durable sink first; a sink error is returned so the entry is retried.
// In-process handlers see the event only after the sink accepted it.
type Relay struct {
	sink  shared.EventHandler
	local shared.EventPublisher
}

// NewRelay creates a Relay. Either side may be nil.
func NewRelay(sink shared.EventHandler, local shared.EventPublisher) *Relay {
	return &Relay{sink: sink, local: local}
}

// Publish delivers events in order and stops at the first sink failure
func (r *Relay) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		if r.sink != nil {
			if err := r.sink.Handle(ctx, event); err != nil {
				return err
			}
		}
		if r.local != nil {
			// the in-memory bus logs its own handler failures
			_ = r.local.Publish(ctx, event)
		}
	}
	return nil
}

var _ shared.EventPublisher = (*Relay)(nil)
