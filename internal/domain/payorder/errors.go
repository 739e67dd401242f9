package payorder

import (
	"fmt"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Error codes of the pay order taxonomy
const (
	CodeProviderUnavailable          = "PROVIDER_UNAVAILABLE"
	CodeRateLimited                  = "RATE_LIMITED"
	CodeNoViableRoute                = "NO_VIABLE_ROUTE"
	CodeQuoteUnavailable             = "QUOTE_UNAVAILABLE"
	CodeStaleQuote                   = "STALE_QUOTE"
	CodeRouteProvisioningFailed      = "ROUTE_PROVISIONING_FAILED"
	CodeVerificationMismatch         = "VERIFICATION_MISMATCH"
	CodeOrderExpired                 = "ORDER_EXPIRED"
	CodeConcurrentTransitionConflict = "CONCURRENT_TRANSITION_CONFLICT"
	CodeUnsupportedCurrency          = "UNSUPPORTED_CURRENCY"
	CodeTxHashAlreadySet             = "TX_HASH_ALREADY_SET"
	CodeConfirmationTimeout          = "CONFIRMATION_TIMEOUT"
)

// Taxonomy sentinels. Match with errors.Is; the typed errors below unwrap to them.
var (
	ErrProviderUnavailable          = shared.NewDomainError(CodeProviderUnavailable, "External provider is unavailable")
	ErrRateLimited                  = shared.NewDomainError(CodeRateLimited, "External provider rate limit reached")
	ErrNoViableRoute                = shared.NewDomainError(CodeNoViableRoute, "No viable route for the requested currencies")
	ErrQuoteUnavailable             = shared.NewDomainError(CodeQuoteUnavailable, "Quotes are currently unavailable")
	ErrStaleQuote                   = shared.NewDomainError(CodeStaleQuote, "Quote is missing or expired, request a new quote")
	ErrRouteProvisioning            = shared.NewDomainError(CodeRouteProvisioningFailed, "Routing provider rejected the route")
	ErrVerificationMismatch         = shared.NewDomainError(CodeVerificationMismatch, "Transaction does not match the payment details")
	ErrOrderExpired                 = shared.NewDomainError(CodeOrderExpired, "Pay order has expired")
	ErrConcurrentTransitionConflict = shared.NewDomainError(CodeConcurrentTransitionConflict, "Pay order was changed by a concurrent request")
	ErrUnsupportedCurrency          = shared.NewDomainError(CodeUnsupportedCurrency, "Currency is not supported")
	ErrTxHashAlreadySet             = shared.NewDomainError(CodeTxHashAlreadySet, "A different transaction is already bound to this pay order")
	ErrConfirmationTimeout          = shared.NewDomainError(CodeConfirmationTimeout, "Transaction did not confirm before the confirmation deadline")
)

// RateLimitedError carries the delay a provider asked for
type RateLimitedError struct {
	*shared.DomainError
	Provider   string
	RetryAfter time.Duration
}

// NewRateLimitedError creates a RateLimitedError
func NewRateLimitedError(provider string, retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{
		DomainError: shared.NewDomainError(CodeRateLimited, fmt.Sprintf("%s rate limit reached", provider)),
		Provider:    provider,
		RetryAfter:  retryAfter,
	}
}

// Unwrap exposes the domain error for errors.Is and errors.As
func (e *RateLimitedError) Unwrap() error {
	return e.DomainError
}

// RouteProvisioningError reports a rejected route together with the amount
// bounds the provider accepts, so the caller can re-quote.
type RouteProvisioningError struct {
	*shared.DomainError
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// NewRouteProvisioningError creates a RouteProvisioningError. Bounds may be nil.
func NewRouteProvisioningError(reason string, minAmount, maxAmount *decimal.Decimal) *RouteProvisioningError {
	msg := "Routing provider rejected the route"
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return &RouteProvisioningError{
		DomainError: shared.NewDomainError(CodeRouteProvisioningFailed, msg),
		MinAmount:   minAmount,
		MaxAmount:   maxAmount,
	}
}

// Unwrap exposes the domain error for errors.Is and errors.As
func (e *RouteProvisioningError) Unwrap() error {
	return e.DomainError
}

// NewVerificationMismatchError describes a rejected transaction
func NewVerificationMismatchError(reason string, mismatches, budget int) *shared.DomainError {
	return shared.NewDomainError(CodeVerificationMismatch,
		fmt.Sprintf("Transaction rejected: %s (%d of %d attempts used)", reason, mismatches, budget))
}

// NewProviderUnavailableError names the provider operation that failed
func NewProviderUnavailableError(operation string) *shared.DomainError {
	return shared.NewDomainError(CodeProviderUnavailable, fmt.Sprintf("External provider is unavailable (%s)", operation))
}
