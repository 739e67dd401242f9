package payorder

import (
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypePayOrder = "PayOrder"

// Event type constants
const (
	EventTypePayOrderCreated         = "PayOrderCreated"
	EventTypePayOrderQuoted          = "PayOrderQuoted"
	EventTypePayOrderAwaitingPayment = "PayOrderAwaitingPayment"
	EventTypePayOrderPaymentDetected = "PayOrderPaymentDetected"
	EventTypePayOrderExecuting       = "PayOrderExecuting"
	EventTypePayOrderCompleted       = "PayOrderCompleted"
	EventTypePayOrderFailed          = "PayOrderFailed"
	EventTypePayOrderExpired         = "PayOrderExpired"
	EventTypePayOrderRefunded        = "PayOrderRefunded"
	EventTypePayOrderPaymentRejected = "PayOrderPaymentRejected"
)

// statusEventTypes maps the target status of a transition to its event type
var statusEventTypes = map[Status]string{
	StatusAwaitingPayment:      EventTypePayOrderAwaitingPayment,
	StatusAwaitingConfirmation: EventTypePayOrderPaymentDetected,
	StatusExecutingOrder:       EventTypePayOrderExecuting,
	StatusCompleted:            EventTypePayOrderCompleted,
	StatusFailed:               EventTypePayOrderFailed,
	StatusExpired:              EventTypePayOrderExpired,
	StatusRefunded:             EventTypePayOrderRefunded,
}

// PayOrderCreatedEvent is raised when a new pay order is created
type PayOrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID             uuid.UUID       `json:"order_id"`
	Mode                Mode            `json:"mode"`
	DestinationCurrency string          `json:"destination_currency,omitempty"`
	AmountExpected      decimal.Decimal `json:"amount_expected"`
}

// NewPayOrderCreatedEvent creates a new PayOrderCreatedEvent
func NewPayOrderCreatedEvent(order *PayOrder) *PayOrderCreatedEvent {
	return &PayOrderCreatedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypePayOrderCreated, AggregateTypePayOrder, order.ID, order.OrganizationID, order.CreatedAt),
		OrderID:             order.ID,
		Mode:                order.Mode,
		DestinationCurrency: order.DestinationCurrency,
		AmountExpected:      order.AmountExpected,
	}
}

// PayOrderQuotedEvent is raised when a quote snapshot is attached
type PayOrderQuotedEvent struct {
	shared.BaseDomainEvent
	OrderID uuid.UUID `json:"order_id"`
	QuoteID uuid.UUID `json:"quote_id"`
	Options int       `json:"options"`
}

// NewPayOrderQuotedEvent creates a new PayOrderQuotedEvent
func NewPayOrderQuotedEvent(order *PayOrder, quote QuoteSnapshot) *PayOrderQuotedEvent {
	return &PayOrderQuotedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayOrderQuoted, AggregateTypePayOrder, order.ID, order.OrganizationID, quote.CreatedAt),
		OrderID:         order.ID,
		QuoteID:         quote.QuoteID,
		Options:         len(quote.Options),
	}
}

// PayOrderTransitionedEvent is raised for every status transition. Its type
// is derived from the target status (PayOrderCompleted, PayOrderExpired, ...).
type PayOrderTransitionedEvent struct {
	shared.BaseDomainEvent
	OrderID  uuid.UUID       `json:"order_id"`
	From     Status          `json:"from"`
	To       Status          `json:"to"`
	Trigger  TransitionEvent `json:"trigger"`
	Evidence Evidence        `json:"evidence"`
}

// NewPayOrderTransitionedEvent creates the event for a recorded transition
func NewPayOrderTransitionedEvent(order *PayOrder, rec TransitionRecord) *PayOrderTransitionedEvent {
	return &PayOrderTransitionedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(statusEventTypes[rec.To], AggregateTypePayOrder, order.ID, order.OrganizationID, rec.OccurredAt),
		OrderID:         order.ID,
		From:            rec.From,
		To:              rec.To,
		Trigger:         rec.Event,
		Evidence:        rec.Evidence,
	}
}

// PayOrderPaymentRejectedEvent is raised when a submitted transaction is
// rejected without the order leaving its status
type PayOrderPaymentRejectedEvent struct {
	shared.BaseDomainEvent
	OrderID       uuid.UUID `json:"order_id"`
	TxHash        string    `json:"tx_hash"`
	Reason        string    `json:"reason"`
	MismatchCount int       `json:"mismatch_count"`
}

// NewPayOrderPaymentRejectedEvent creates a new PayOrderPaymentRejectedEvent
func NewPayOrderPaymentRejectedEvent(order *PayOrder, result VerificationResult) *PayOrderPaymentRejectedEvent {
	return &PayOrderPaymentRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayOrderPaymentRejected, AggregateTypePayOrder, order.ID, order.OrganizationID, result.ObservedAt),
		OrderID:         order.ID,
		TxHash:          result.TxHash,
		Reason:          result.Reason,
		MismatchCount:   order.MismatchCount,
	}
}
