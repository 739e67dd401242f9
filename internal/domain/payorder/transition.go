package payorder

import (
	"time"

	"github.com/google/uuid"
)

// TransitionEvent names what triggered a status change
type TransitionEvent string

const (
	EventOrderCreated         TransitionEvent = "ORDER_CREATED"
	EventRouteProvisioned     TransitionEvent = "ROUTE_PROVISIONED"
	EventPaymentDetected      TransitionEvent = "PAYMENT_DETECTED"
	EventPaymentConfirmed     TransitionEvent = "PAYMENT_CONFIRMED"
	EventSettlementCompleted  TransitionEvent = "SETTLEMENT_COMPLETED"
	EventSettlementFailed     TransitionEvent = "SETTLEMENT_FAILED"
	EventVerificationFailed   TransitionEvent = "VERIFICATION_FAILED"
	EventConfirmationTimedOut TransitionEvent = "CONFIRMATION_TIMED_OUT"
	EventOrderExpired         TransitionEvent = "ORDER_EXPIRED"
)

// Evidence is what justified a transition
type Evidence struct {
	QuoteID            *uuid.UUID         `json:"quote_id,omitempty"`
	RouteID            string             `json:"route_id,omitempty"`
	TxHash             string             `json:"tx_hash,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	Confirmations      uint64             `json:"confirmations,omitempty"`
	Reason             string             `json:"reason,omitempty"`
}

// TransitionRecord is one entry of the audit trail
type TransitionRecord struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	From       Status
	To         Status
	Event      TransitionEvent
	Evidence   Evidence
	OccurredAt time.Time
}
