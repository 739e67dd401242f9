package payorder

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RouteDetails is what the payer needs to fund the order
type RouteDetails struct {
	RouteID             string          `json:"route_id"`
	Provider            string          `json:"provider"`
	DepositAddress      string          `json:"deposit_address"`
	DepositExtraID      string          `json:"deposit_extra_id,omitempty"`
	SourceCurrency      string          `json:"source_currency"`
	DestinationCurrency string          `json:"destination_currency"`
	DestinationAddress  string          `json:"destination_address"`
	ExpectedAmount      decimal.Decimal `json:"expected_amount"`
	MinAmount           decimal.Decimal `json:"min_amount"`
	MaxAmount           decimal.Decimal `json:"max_amount"`
	EstimatedArrival    time.Duration   `json:"estimated_arrival"`
	ProvisionedAt       time.Time       `json:"provisioned_at"`
}

// RouteRequest asks a routing provider for a deposit address
type RouteRequest struct {
	OrderID             uuid.UUID
	SourceCurrency      Currency
	DestinationCurrency Currency
	DestinationAddress  string
	RefundAddress       string
	SourceAmount        decimal.Decimal
}

// RouteStatus is the settlement progress reported by the routing provider
type RouteStatus string

const (
	RouteStatusInProgress RouteStatus = "IN_PROGRESS"
	RouteStatusSettled    RouteStatus = "SETTLED"
	RouteStatusFailed     RouteStatus = "FAILED"
	RouteStatusRefunded   RouteStatus = "REFUNDED"
)

// RouteStatusReport is a point-in-time settlement report for a route
type RouteStatusReport struct {
	RouteID      string
	Status       RouteStatus
	PayoutTxHash string
	AmountOut    decimal.Decimal
	Detail       string
}
