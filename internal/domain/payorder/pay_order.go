package payorder

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotExpirable is returned when an expiry is attempted on an order that
// has not reached expires_at or already holds a qualifying transaction
var ErrNotExpirable = shared.NewDomainError("NOT_EXPIRABLE", "Pay order cannot be expired")

// VerificationPolicy controls how verifier evidence is interpreted
type VerificationPolicy struct {
	// MismatchRetryBudget is the number of distinct rejected transactions
	// after which the order fails
	MismatchRetryBudget int
	// AmountTolerance is the fraction the observed amount may fall short of
	// the quoted amount
	AmountTolerance decimal.Decimal
	// ConfirmationTimeout bounds how long a bound transaction may stay
	// unconfirmed or unresolvable before the order fails
	ConfirmationTimeout time.Duration
}

// DefaultVerificationPolicy returns the documented defaults
func DefaultVerificationPolicy() VerificationPolicy {
	return VerificationPolicy{
		MismatchRetryBudget: 3,
		AmountTolerance:     decimal.RequireFromString("0.005"),
		ConfirmationTimeout: time.Hour,
	}
}

func (p VerificationPolicy) normalized() VerificationPolicy {
	if p.MismatchRetryBudget < 1 {
		p.MismatchRetryBudget = 1
	}
	if p.AmountTolerance.IsNegative() {
		p.AmountTolerance = decimal.Zero
	}
	if p.ConfirmationTimeout <= 0 {
		p.ConfirmationTimeout = DefaultVerificationPolicy().ConfirmationTimeout
	}
	return p
}

// Outcome describes what applying a piece of evidence did to an order
type Outcome int

const (
	// OutcomeUnchanged means the evidence was already applied or changes nothing yet
	OutcomeUnchanged Outcome = iota
	// OutcomeAdvanced means the order moved forward along the happy path
	OutcomeAdvanced
	// OutcomeMismatchRecorded means a transaction was rejected within the retry budget
	OutcomeMismatchRecorded
	// OutcomeFailed means the order moved to FAILED
	OutcomeFailed
	// OutcomeExpired means the order moved to EXPIRED
	OutcomeExpired
)

// NewPayOrderParams holds the inputs for creating a pay order
type NewPayOrderParams struct {
	OrganizationID      uuid.UUID
	Mode                Mode
	DestinationCurrency string
	DestinationAddress  string
	AmountExpected      decimal.Decimal
	DestinationValueUSD *decimal.Decimal
	RefundAddress       string
	Metadata            map[string]string
	TTL                 time.Duration
}

// PayOrder represents a pay order aggregate root.
// It is mutated only through its transition methods; every status change is
// appended to Transitions and raised as a domain event.
type PayOrder struct {
	shared.OwnedAggregateRoot
	Mode                Mode
	Status              Status
	SourceCurrency      string
	DestinationCurrency string
	DestinationAddress  string
	RefundAddress       string
	AmountExpected      decimal.Decimal
	DestinationValueUSD *decimal.Decimal
	AmountReceived      *decimal.Decimal
	TxHash              string
	Quote               *QuoteSnapshot
	Route               *RouteDetails
	MismatchCount       int
	RejectedTxHashes    []string
	Transitions         []TransitionRecord
	Metadata            map[string]string
	ExpiresAt           time.Time
	// ConfirmDeadline is set when a transaction is bound. Past it the order
	// fails unless the transaction confirmed.
	ConfirmDeadline *time.Time
}

// NewPayOrder creates a new pay order in PENDING status
func NewPayOrder(p NewPayOrderParams, now time.Time) (*PayOrder, error) {
	if p.OrganizationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if !p.Mode.IsValid() {
		return nil, shared.NewDomainError("INVALID_MODE", fmt.Sprintf("Unknown pay order mode %q", p.Mode))
	}
	if p.TTL <= 0 {
		return nil, shared.NewDomainError("INVALID_TTL", "Order time-to-live must be positive")
	}
	if err := validateAmounts(p); err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		metadata[k] = v
	}

	order := &PayOrder{
		OwnedAggregateRoot:  shared.NewOwnedAggregateRoot(p.OrganizationID, now),
		Mode:                p.Mode,
		Status:              StatusPending,
		DestinationCurrency: p.DestinationCurrency,
		DestinationAddress:  strings.TrimSpace(p.DestinationAddress),
		RefundAddress:       strings.TrimSpace(p.RefundAddress),
		AmountExpected:      p.AmountExpected,
		DestinationValueUSD: p.DestinationValueUSD,
		RejectedTxHashes:    make([]string, 0),
		Transitions:         make([]TransitionRecord, 0),
		Metadata:            metadata,
		ExpiresAt:           now.Add(p.TTL),
	}
	order.Transitions = append(order.Transitions, TransitionRecord{
		ID:         uuid.New(),
		OrderID:    order.ID,
		To:         StatusPending,
		Event:      EventOrderCreated,
		OccurredAt: now,
	})

	order.AddDomainEvent(NewPayOrderCreatedEvent(order))

	return order, nil
}

func validateAmounts(p NewPayOrderParams) error {
	hasAmount := !p.AmountExpected.IsZero()
	hasValue := p.DestinationValueUSD != nil

	if p.AmountExpected.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "Expected amount cannot be negative")
	}
	if hasValue && !p.DestinationValueUSD.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Destination USD value must be positive")
	}
	if hasAmount == hasValue {
		return shared.NewDomainError("INVALID_AMOUNT", "Specify exactly one of amount_expected or destination_value_usd")
	}
	if hasAmount && p.DestinationCurrency == "" {
		return shared.NewDomainError("INVALID_DESTINATION", "Expected amount requires a destination currency")
	}
	if p.Mode == ModeDeposit && p.DestinationCurrency == "" {
		return shared.NewDomainError("INVALID_DESTINATION", "Deposit orders require a destination currency")
	}
	if p.DestinationCurrency != "" && strings.TrimSpace(p.DestinationAddress) == "" {
		return shared.NewDomainError("INVALID_DESTINATION", "Destination address is required with a destination currency")
	}
	return nil
}

// RecordQuote attaches the quote a route will later be provisioned from.
// Only allowed in PENDING status; a newer quote replaces an older one.
func (o *PayOrder) RecordQuote(quote QuoteSnapshot, now time.Time) error {
	if o.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot quote order in %s status", o.Status))
	}
	if len(quote.Options) == 0 {
		return ErrNoViableRoute
	}

	o.Quote = &quote
	o.Touch(now)

	o.AddDomainEvent(NewPayOrderQuotedEvent(o, quote))

	return nil
}

// AttachRoute stores the provisioned route and moves the order from PENDING
// to AWAITING_PAYMENT. Attaching the same route again is a no-op.
func (o *PayOrder) AttachRoute(route RouteDetails, refundAddress string, paymentWindow time.Duration, now time.Time) error {
	if o.Route != nil {
		if o.Route.RouteID == route.RouteID && o.Route.SourceCurrency == route.SourceCurrency {
			return nil
		}
		return shared.NewDomainError("ROUTE_ALREADY_PROVISIONED", "A route has already been provisioned for this order")
	}
	if !o.Status.CanTransitionTo(StatusAwaitingPayment) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot provision a route for order in %s status", o.Status))
	}
	if route.RouteID == "" || route.DepositAddress == "" {
		return shared.NewDomainError("ROUTE_DETAILS_MISSING", "Route must carry an ID and a deposit address")
	}
	if !now.Before(o.ExpiresAt) {
		return ErrOrderExpired
	}
	if o.Quote == nil || o.Quote.IsExpired(now) {
		return ErrStaleQuote
	}
	option, ok := o.Quote.Find(route.SourceCurrency)
	if !ok {
		return ErrStaleQuote
	}
	if o.DestinationCurrency != "" && route.DestinationCurrency != "" && route.DestinationCurrency != o.DestinationCurrency {
		return shared.NewDomainError("INVALID_ROUTE", "Route destination does not match the order destination")
	}

	r := route
	if r.ProvisionedAt.IsZero() {
		r.ProvisionedAt = now
	}
	if r.ExpectedAmount.IsZero() {
		r.ExpectedAmount = option.ImpliedAmount
	}

	o.Route = &r
	o.SourceCurrency = r.SourceCurrency
	if o.DestinationCurrency == "" {
		o.DestinationCurrency = option.DestinationCurrency
	}
	if o.DestinationAddress == "" {
		o.DestinationAddress = r.DestinationAddress
	}
	if o.AmountExpected.IsZero() {
		o.AmountExpected = option.DestinationAmount
	}
	if refundAddress != "" {
		o.RefundAddress = refundAddress
	}
	if paymentWindow > 0 {
		o.ExpiresAt = now.Add(paymentWindow)
	}

	quoteID := o.Quote.QuoteID
	o.transition(StatusAwaitingPayment, EventRouteProvisioned, Evidence{QuoteID: &quoteID, RouteID: r.RouteID}, now)

	return nil
}

// ApplyVerification interprets verifier evidence for a submitted transaction.
// Replaying evidence that was already applied returns OutcomeUnchanged and no error.
// A MISMATCH for the bound transaction in AWAITING_CONFIRMATION fails the order
// at once: tx_hash is immutable, so the mismatch budget cannot be spent there.
func (o *PayOrder) ApplyVerification(result VerificationResult, policy VerificationPolicy, now time.Time) (Outcome, error) {
	if result.TxHash == "" {
		return OutcomeUnchanged, shared.NewDomainError("INVALID_TX_HASH", "Transaction hash cannot be empty")
	}
	policy = policy.normalized()

	switch o.Status {
	case StatusExpired:
		return OutcomeUnchanged, ErrOrderExpired
	case StatusExecutingOrder, StatusCompleted, StatusRefunded:
		if o.TxHash == result.TxHash {
			return OutcomeUnchanged, nil
		}
		return OutcomeUnchanged, ErrTxHashAlreadySet
	case StatusFailed:
		return OutcomeUnchanged, shared.NewDomainError("INVALID_STATE", "Cannot accept payment for order in FAILED status")
	case StatusPending:
		return OutcomeUnchanged, shared.NewDomainError("INVALID_STATE", "Payment details have not been provisioned")
	case StatusAwaitingConfirmation:
		if o.TxHash != result.TxHash {
			return OutcomeUnchanged, ErrTxHashAlreadySet
		}
		return o.applyWhileConfirming(result, now), nil
	case StatusAwaitingPayment:
		return o.applyWhileAwaitingPayment(result, policy, now)
	}
	return OutcomeUnchanged, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Unknown status %s", o.Status))
}

func (o *PayOrder) applyWhileAwaitingPayment(result VerificationResult, policy VerificationPolicy, now time.Time) (Outcome, error) {
	if slices.Contains(o.RejectedTxHashes, result.TxHash) {
		return OutcomeUnchanged, NewVerificationMismatchError("transaction was already rejected", o.MismatchCount, policy.MismatchRetryBudget)
	}

	qualifies := result.Qualifies() && o.paidBeforeExpiry(result, now)
	if !qualifies && !now.Before(o.ExpiresAt) {
		o.transition(StatusExpired, EventOrderExpired, Evidence{
			TxHash:             result.TxHash,
			VerificationStatus: result.Status,
			Reason:             "no qualifying transaction before expiry",
		}, now)
		return OutcomeExpired, nil
	}

	switch result.Status {
	case VerificationNotFound:
		return OutcomeUnchanged, nil
	case VerificationMismatch:
		return o.recordMismatch(result, policy, now), nil
	case VerificationMatch, VerificationUnconfirmed:
		if !o.amountWithinTolerance(result.AmountObserved, policy) {
			result.Status = VerificationMismatch
			result.Reason = "amount is below the quoted amount"
			return o.recordMismatch(result, policy, now), nil
		}
	default:
		return OutcomeUnchanged, shared.NewDomainError("INVALID_EVIDENCE", fmt.Sprintf("Unknown verification status %q", result.Status))
	}

	received := result.AmountObserved
	deadline := now.Add(policy.ConfirmationTimeout)
	o.TxHash = result.TxHash
	o.AmountReceived = &received
	o.ConfirmDeadline = &deadline

	evidence := Evidence{
		RouteID:            o.routeID(),
		TxHash:             result.TxHash,
		VerificationStatus: result.Status,
		Confirmations:      result.Confirmations,
	}
	o.transition(StatusAwaitingConfirmation, EventPaymentDetected, evidence, now)
	if result.Status == VerificationMatch {
		o.transition(StatusExecutingOrder, EventPaymentConfirmed, evidence, now)
	}
	return OutcomeAdvanced, nil
}

// applyWhileConfirming handles evidence for the transaction already bound to
// the order. A mismatch here means the bound transaction changed on chain, and
// since tx_hash is immutable no other transaction can rescue the order. The
// same holds once the confirmation deadline passes without a MATCH.
func (o *PayOrder) applyWhileConfirming(result VerificationResult, now time.Time) Outcome {
	evidence := Evidence{
		RouteID:            o.routeID(),
		TxHash:             result.TxHash,
		VerificationStatus: result.Status,
		Confirmations:      result.Confirmations,
		Reason:             result.Reason,
	}
	switch result.Status {
	case VerificationMatch:
		o.transition(StatusExecutingOrder, EventPaymentConfirmed, evidence, now)
		return OutcomeAdvanced
	case VerificationMismatch:
		o.MismatchCount++
		o.RejectedTxHashes = append(o.RejectedTxHashes, result.TxHash)
		o.transition(StatusFailed, EventVerificationFailed, evidence, now)
		return OutcomeFailed
	}
	if o.confirmationOverdue(now) {
		evidence.Reason = fmt.Sprintf("transaction still %s after the confirmation deadline", result.Status)
		o.transition(StatusFailed, EventConfirmationTimedOut, evidence, now)
		return OutcomeFailed
	}
	return OutcomeUnchanged
}

// TimeOutConfirmation fails an order whose bound transaction did not confirm
// before ConfirmDeadline. Timing out an order that already failed is a no-op.
func (o *PayOrder) TimeOutConfirmation(now time.Time) error {
	if o.Status == StatusFailed {
		return nil
	}
	if o.Status != StatusAwaitingConfirmation {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot time out confirmation of order in %s status", o.Status))
	}
	if !o.confirmationOverdue(now) {
		return ErrNotExpirable
	}
	o.transition(StatusFailed, EventConfirmationTimedOut, Evidence{
		RouteID: o.routeID(),
		TxHash:  o.TxHash,
		Reason:  "transaction did not confirm before the confirmation deadline",
	}, now)
	return nil
}

func (o *PayOrder) confirmationOverdue(now time.Time) bool {
	return o.ConfirmDeadline != nil && !now.Before(*o.ConfirmDeadline)
}

func (o *PayOrder) recordMismatch(result VerificationResult, policy VerificationPolicy, now time.Time) Outcome {
	o.MismatchCount++
	o.RejectedTxHashes = append(o.RejectedTxHashes, result.TxHash)

	if o.MismatchCount >= policy.MismatchRetryBudget {
		o.transition(StatusFailed, EventVerificationFailed, Evidence{
			RouteID:            o.routeID(),
			TxHash:             result.TxHash,
			VerificationStatus: VerificationMismatch,
			Confirmations:      result.Confirmations,
			Reason:             fmt.Sprintf("mismatch retry budget exhausted: %s", result.Reason),
		}, now)
		return OutcomeFailed
	}

	o.Touch(now)
	o.AddDomainEvent(NewPayOrderPaymentRejectedEvent(o, result))
	return OutcomeMismatchRecorded
}

// ApplySettlement interprets a routing provider report for an order in
// EXECUTING_ORDER. A failed route that has not been refunded leaves the
// order in place for manual review.
func (o *PayOrder) ApplySettlement(report RouteStatusReport, now time.Time) (Outcome, error) {
	switch o.Status {
	case StatusCompleted:
		if report.Status == RouteStatusSettled {
			return OutcomeUnchanged, nil
		}
		return OutcomeUnchanged, shared.NewDomainError("INVALID_STATE", "Order is already completed")
	case StatusRefunded:
		if report.Status == RouteStatusRefunded {
			return OutcomeUnchanged, nil
		}
		return OutcomeUnchanged, shared.NewDomainError("INVALID_STATE", "Order is already refunded")
	case StatusExecutingOrder:
	default:
		return OutcomeUnchanged, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot settle order in %s status", o.Status))
	}
	if o.Route == nil || report.RouteID != o.Route.RouteID {
		return OutcomeUnchanged, shared.NewDomainError("INVALID_ROUTE", "Settlement report does not belong to this order's route")
	}

	evidence := Evidence{RouteID: report.RouteID, TxHash: o.TxHash, Reason: report.Detail}
	switch report.Status {
	case RouteStatusSettled:
		if report.PayoutTxHash != "" {
			evidence.Reason = fmt.Sprintf("payout %s", report.PayoutTxHash)
		}
		o.transition(StatusCompleted, EventSettlementCompleted, evidence, now)
		return OutcomeAdvanced, nil
	case RouteStatusRefunded:
		o.transition(StatusRefunded, EventSettlementFailed, evidence, now)
		return OutcomeAdvanced, nil
	}
	return OutcomeUnchanged, nil
}

// Expire moves an overdue order without a qualifying transaction to EXPIRED.
// Expiring an already expired order is a no-op.
func (o *PayOrder) Expire(now time.Time) error {
	if o.Status == StatusExpired {
		return nil
	}
	if o.TxHash != "" {
		return ErrNotExpirable
	}
	if !o.Status.CanTransitionTo(StatusExpired) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot expire order in %s status", o.Status))
	}
	if now.Before(o.ExpiresAt) {
		return ErrNotExpirable
	}

	o.transition(StatusExpired, EventOrderExpired, Evidence{Reason: "expires_at passed without a qualifying transaction"}, now)
	return nil
}

// transition records and applies a single guarded status change
func (o *PayOrder) transition(to Status, event TransitionEvent, evidence Evidence, now time.Time) {
	rec := TransitionRecord{
		ID:         uuid.New(),
		OrderID:    o.ID,
		From:       o.Status,
		To:         to,
		Event:      event,
		Evidence:   evidence,
		OccurredAt: now,
	}
	o.Transitions = append(o.Transitions, rec)
	o.Status = to
	o.Touch(now)

	o.AddDomainEvent(NewPayOrderTransitionedEvent(o, rec))
}

func (o *PayOrder) paidBeforeExpiry(result VerificationResult, now time.Time) bool {
	if result.TxTimestamp.IsZero() {
		return now.Before(o.ExpiresAt)
	}
	return result.TxTimestamp.Before(o.ExpiresAt)
}

func (o *PayOrder) amountWithinTolerance(observed decimal.Decimal, policy VerificationPolicy) bool {
	if o.Route == nil || o.Route.ExpectedAmount.IsZero() {
		return true
	}
	minimum := o.Route.ExpectedAmount.Mul(decimal.NewFromInt(1).Sub(policy.AmountTolerance))
	return observed.GreaterThanOrEqual(minimum)
}

func (o *PayOrder) routeID() string {
	if o.Route == nil {
		return ""
	}
	return o.Route.RouteID
}

// IsTerminal returns true if the order can no longer change
func (o *PayOrder) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// IsOverdue reports whether the background sweep should close the order:
// past expires_at without a transaction, or past the confirmation deadline
// with one that never confirmed
func (o *PayOrder) IsOverdue(now time.Time) bool {
	switch o.Status {
	case StatusPending, StatusAwaitingPayment:
		return o.TxHash == "" && !now.Before(o.ExpiresAt)
	case StatusAwaitingConfirmation:
		return o.confirmationOverdue(now)
	}
	return false
}

// LastTransition returns the most recent audit record
func (o *PayOrder) LastTransition() (TransitionRecord, bool) {
	if len(o.Transitions) == 0 {
		return TransitionRecord{}, false
	}
	return o.Transitions[len(o.Transitions)-1], true
}

// ReachedWith reports whether the order is at or past target because of the
// given transaction. It lets the loser of a race recognise that the winner
// already applied the same evidence.
func (o *PayOrder) ReachedWith(target Status, txHash string) bool {
	if txHash != "" && o.TxHash != txHash {
		return false
	}
	for _, rec := range o.Transitions {
		if rec.To == target {
			return true
		}
	}
	return o.Status == target
}
