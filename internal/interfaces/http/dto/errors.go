package dto

import (
	"net/http"
	"strings"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
)

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "VALIDATION_FAILED"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
)

// Resource error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "INVALID_STATE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Guard violations -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	// Pay order taxonomy
	payorder.CodeProviderUnavailable:          http.StatusServiceUnavailable,
	payorder.CodeRateLimited:                  http.StatusTooManyRequests,
	payorder.CodeNoViableRoute:                http.StatusUnprocessableEntity,
	payorder.CodeQuoteUnavailable:             http.StatusUnprocessableEntity,
	payorder.CodeStaleQuote:                   http.StatusConflict,
	payorder.CodeRouteProvisioningFailed:      http.StatusUnprocessableEntity,
	payorder.CodeVerificationMismatch:         http.StatusUnprocessableEntity,
	payorder.CodeOrderExpired:                 http.StatusGone,
	payorder.CodeConcurrentTransitionConflict: http.StatusConflict,
	payorder.CodeUnsupportedCurrency:          http.StatusUnprocessableEntity,
	payorder.CodeTxHashAlreadySet:             http.StatusConflict,
	payorder.CodeConfirmationTimeout:          http.StatusGone,
	"ROUTE_ALREADY_PROVISIONED":               http.StatusConflict,
	"NO_SETTLEMENT_CURRENCIES":                http.StatusUnprocessableEntity,
	"CREDENTIALS_UNAVAILABLE":                 http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unlisted INVALID_* and DUPLICATE_* codes are input errors; anything else
// unknown is a 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "INVALID_") || strings.HasPrefix(code, "DUPLICATE_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorCodeAliases folds storage-level codes into the codes clients see
var ErrorCodeAliases = map[string]string{
	"OPTIMISTIC_LOCK_FAILED":  payorder.CodeConcurrentTransitionConflict,
	"VERSION_CONFLICT":        payorder.CodeConcurrentTransitionConflict,
	"CONCURRENT_MODIFICATION": payorder.CodeConcurrentTransitionConflict,
}

// NormalizeErrorCode converts an aliased error code to the code clients see.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if alias, ok := ErrorCodeAliases[code]; ok {
		return alias
	}
	return code
}
