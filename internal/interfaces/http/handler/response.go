package handler

import "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/interfaces/http/dto"

// Envelope documents the body of a successful call in the OpenAPI output.
// Handlers write dto.Response; this type only gives swag a concrete data type.
type Envelope[T any] struct {
	Success bool      `json:"success" example:"true"`
	Data    T         `json:"data"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// ErrorEnvelope documents a failed call. Error.Code is one of the dto.ErrCode
// values, for example QUOTE_EXPIRED or CONCURRENT_TRANSITION_CONFLICT.
type ErrorEnvelope struct {
	Success bool          `json:"success" example:"false"`
	Error   dto.ErrorInfo `json:"error"`
}
