package event

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
)

// EventSerializer encodes domain events as JSON and decodes them back into
// their concrete types
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer that knows every pay order and
// organization event
func NewEventSerializer() *EventSerializer {
	s := &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
	RegisterPayOrderEvents(s)
	return s
}

// RegisterPayOrderEvents registers the event types raised by the payorder domain
func RegisterPayOrderEvents(s *EventSerializer) {
	Register[payorder.PayOrderCreatedEvent](s, payorder.EventTypePayOrderCreated)
	Register[payorder.PayOrderQuotedEvent](s, payorder.EventTypePayOrderQuoted)
	Register[payorder.PayOrderPaymentRejectedEvent](s, payorder.EventTypePayOrderPaymentRejected)
	Register[payorder.PayOrderTransitionedEvent](s,
		payorder.EventTypePayOrderAwaitingPayment,
		payorder.EventTypePayOrderPaymentDetected,
		payorder.EventTypePayOrderExecuting,
		payorder.EventTypePayOrderCompleted,
		payorder.EventTypePayOrderFailed,
		payorder.EventTypePayOrderExpired,
		payorder.EventTypePayOrderRefunded,
	)
	Register[payorder.OrganizationEvent](s,
		payorder.EventTypeOrganizationCreated,
		payorder.EventTypeSettlementCurrenciesReplaced,
		payorder.EventTypeOrganizationCredentialsRotated,
	)
}

// Register maps event types onto the struct T, decoded through *T
func Register[T any, PT interface {
	*T
	shared.DomainEvent
}](s *EventSerializer, eventTypes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventType := range eventTypes {
		s.factories[eventType] = func() shared.DomainEvent { return PT(new(T)) }
	}
}

// Serialize encodes a domain event as JSON
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize decodes data into the type registered for eventType. The
// payload must carry the same type it is filed under.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	if got := event.EventType(); got != eventType {
		return nil, fmt.Errorf("payload carries event type %q, expected %q", got, eventType)
	}
	return event, nil
}

// IsRegistered reports whether eventType can be decoded
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

// RegisteredTypes returns the registered event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
