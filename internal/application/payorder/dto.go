package payorder

import (
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreatePayOrderRequest represents a request to create a pay order
type CreatePayOrderRequest struct {
	Mode                string            `json:"mode" binding:"required,payorder_mode"`
	DestinationCurrency string            `json:"destination_currency" binding:"max=64"`
	DestinationAddress  string            `json:"destination_address" binding:"max=256"`
	AmountExpected      *decimal.Decimal  `json:"amount_expected" binding:"omitempty,decimal_positive"`
	DestinationValueUSD *decimal.Decimal  `json:"destination_value_usd" binding:"omitempty,decimal_positive"`
	RefundAddress       string            `json:"refund_address" binding:"max=256"`
	Metadata            map[string]string `json:"metadata"`
}

// QuoteRequest asks for quote options
type QuoteRequest struct {
	CandidateCurrencies []string `json:"candidate_currencies" binding:"required,min=1,max=50,dive,required,max=64"`
}

// PaymentDetailsRequest selects a source currency from the latest quote
type PaymentDetailsRequest struct {
	SourceCurrency string `json:"source_currency" binding:"required,max=64"`
	RefundAddress  string `json:"refund_address" binding:"max=256"`
}

// ListPayOrdersFilter represents filter options for the pay order list
type ListPayOrdersFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=PENDING AWAITING_PAYMENT AWAITING_CONFIRMATION EXECUTING_ORDER COMPLETED FAILED EXPIRED REFUNDED"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// TransitionResponse is one audit record
type TransitionResponse struct {
	From       string            `json:"from,omitempty"`
	To         string            `json:"to"`
	Event      string            `json:"event"`
	Evidence   payorder.Evidence `json:"evidence"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// PayOrderResponse represents a pay order in API responses
type PayOrderResponse struct {
	ID                  uuid.UUID               `json:"id"`
	OrganizationID      uuid.UUID               `json:"organization_id"`
	Mode                string                  `json:"mode"`
	Status              string                  `json:"status"`
	SourceCurrency      string                  `json:"source_currency,omitempty"`
	DestinationCurrency string                  `json:"destination_currency,omitempty"`
	DestinationAddress  string                  `json:"destination_address,omitempty"`
	RefundAddress       string                  `json:"refund_address,omitempty"`
	AmountExpected      decimal.Decimal         `json:"amount_expected"`
	DestinationValueUSD *decimal.Decimal        `json:"destination_value_usd,omitempty"`
	AmountReceived      *decimal.Decimal        `json:"amount_received,omitempty"`
	TxHash              string                  `json:"tx_hash,omitempty"`
	Quote               *payorder.QuoteSnapshot `json:"quote,omitempty"`
	PaymentDetails      *payorder.RouteDetails  `json:"payment_details,omitempty"`
	MismatchCount       int                     `json:"mismatch_count"`
	Metadata            map[string]string       `json:"metadata,omitempty"`
	Transitions         []TransitionResponse    `json:"transitions,omitempty"`
	ExpiresAt           time.Time               `json:"expires_at"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
	Version             int                     `json:"version"`
}

// PayOrderListResponse represents a list item for pay orders
type PayOrderListResponse struct {
	ID                  uuid.UUID       `json:"id"`
	Mode                string          `json:"mode"`
	Status              string          `json:"status"`
	SourceCurrency      string          `json:"source_currency,omitempty"`
	DestinationCurrency string          `json:"destination_currency,omitempty"`
	AmountExpected      decimal.Decimal `json:"amount_expected"`
	TxHash              string          `json:"tx_hash,omitempty"`
	ExpiresAt           time.Time       `json:"expires_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// QuoteResponse carries the options a payer can choose from
type QuoteResponse struct {
	QuoteID   *uuid.UUID             `json:"quote_id,omitempty"`
	Options   []payorder.QuoteOption `json:"options"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// ProcessResponse is the order after a payment submission together with the
// evidence that was applied
type ProcessResponse struct {
	Order        *PayOrderResponse             `json:"order"`
	Verification *payorder.VerificationResult `json:"verification,omitempty"`
}

// SettlementCurrencyInput is one settlement currency in a request
type SettlementCurrencyInput struct {
	CurrencyID string `json:"currency_id" binding:"required,max=64"`
	Address    string `json:"address" binding:"required,max=256"`
}

// CreateOrganizationRequest represents a request to create an organization
type CreateOrganizationRequest struct {
	Name                 string                    `json:"name" binding:"required,min=1,max=255"`
	OwnerID              uuid.UUID                 `json:"owner_id" binding:"required"`
	SettlementCurrencies []SettlementCurrencyInput `json:"settlement_currencies" binding:"dive"`
}

// UpdateSettlementCurrenciesRequest replaces an organization's settlement currencies
type UpdateSettlementCurrenciesRequest struct {
	SettlementCurrencies []SettlementCurrencyInput `json:"settlement_currencies" binding:"required,dive"`
}

// OrganizationResponse represents an organization in API responses. The API
// secret is never included.
type OrganizationResponse struct {
	ID                   uuid.UUID                     `json:"id"`
	Name                 string                        `json:"name"`
	OwnerID              uuid.UUID                     `json:"owner_id"`
	APIKey               string                        `json:"api_key"`
	SettlementCurrencies []payorder.SettlementCurrency `json:"settlement_currencies"`
	CreatedAt            time.Time                     `json:"created_at"`
	UpdatedAt            time.Time                     `json:"updated_at"`
}

// CredentialsResponse is returned once, when credentials are issued
type CredentialsResponse struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	APIKey         string    `json:"api_key"`
	APISecret      string    `json:"api_secret"`
}

// ToPayOrderResponse converts a domain PayOrder to PayOrderResponse
func ToPayOrderResponse(o *payorder.PayOrder) PayOrderResponse {
	transitions := make([]TransitionResponse, len(o.Transitions))
	for i, t := range o.Transitions {
		transitions[i] = TransitionResponse{
			From:       string(t.From),
			To:         string(t.To),
			Event:      string(t.Event),
			Evidence:   t.Evidence,
			OccurredAt: t.OccurredAt,
		}
	}
	return PayOrderResponse{
		ID:                  o.ID,
		OrganizationID:      o.OrganizationID,
		Mode:                string(o.Mode),
		Status:              string(o.Status),
		SourceCurrency:      o.SourceCurrency,
		DestinationCurrency: o.DestinationCurrency,
		DestinationAddress:  o.DestinationAddress,
		RefundAddress:       o.RefundAddress,
		AmountExpected:      o.AmountExpected,
		DestinationValueUSD: o.DestinationValueUSD,
		AmountReceived:      o.AmountReceived,
		TxHash:              o.TxHash,
		Quote:               o.Quote,
		PaymentDetails:      o.Route,
		MismatchCount:       o.MismatchCount,
		Metadata:            o.Metadata,
		Transitions:         transitions,
		ExpiresAt:           o.ExpiresAt,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		Version:             o.Version,
	}
}

// ToPayOrderListResponse converts a domain PayOrder to a list item
func ToPayOrderListResponse(o *payorder.PayOrder) PayOrderListResponse {
	return PayOrderListResponse{
		ID:                  o.ID,
		Mode:                string(o.Mode),
		Status:              string(o.Status),
		SourceCurrency:      o.SourceCurrency,
		DestinationCurrency: o.DestinationCurrency,
		AmountExpected:      o.AmountExpected,
		TxHash:              o.TxHash,
		ExpiresAt:           o.ExpiresAt,
		CreatedAt:           o.CreatedAt,
	}
}

// ToOrganizationResponse converts a domain Organization to OrganizationResponse
func ToOrganizationResponse(o *payorder.Organization) OrganizationResponse {
	settlement := make([]payorder.SettlementCurrency, len(o.SettlementCurrencies))
	copy(settlement, o.SettlementCurrencies)
	return OrganizationResponse{
		ID:                   o.ID,
		Name:                 o.Name,
		OwnerID:              o.OwnerID,
		APIKey:               o.APIKey,
		SettlementCurrencies: settlement,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func toSettlementCurrencies(in []SettlementCurrencyInput) []payorder.SettlementCurrency {
	out := make([]payorder.SettlementCurrency, len(in))
	for i, sc := range in {
		out[i] = payorder.SettlementCurrency{CurrencyID: sc.CurrencyID, Address: sc.Address}
	}
	return out
}
