package payorder

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrTransactionNotFound is returned by a ChainReader for an unknown hash
var ErrTransactionNotFound = errors.New("chain: transaction not found")

// Price is a USD quote for one unit of a currency
type Price struct {
	UnitPriceUSD decimal.Decimal
	AsOf         time.Time
}

// PricingProvider supplies market prices.
// Failures wrap ErrProviderUnavailable or are a *RateLimitedError.
type PricingProvider interface {
	GetPrice(ctx context.Context, currency Currency) (Price, error)
}

// RoutingProvider creates and tracks exchange routes
type RoutingProvider interface {
	Name() string
	CreateRoute(ctx context.Context, req RouteRequest) (RouteDetails, error)
	GetRoute(ctx context.Context, routeID string) (RouteStatusReport, error)
}

// Transfer is one asset movement inside a transaction.
// Amount is expressed in the asset's smallest unit.
type Transfer struct {
	From   string
	To     string
	Asset  string
	Amount decimal.Decimal
}

// ChainTransaction is a transaction as observed on chain. A single transaction
// may carry several transfers (token transfers, balance changes).
type ChainTransaction struct {
	Hash          string
	Transfers     []Transfer
	Confirmations uint64
	Timestamp     time.Time
	Failed        bool
}

// ChainReader looks up transactions on one chain
type ChainReader interface {
	Family() ChainFamily
	GetTransaction(ctx context.Context, hash string) (ChainTransaction, error)
}
