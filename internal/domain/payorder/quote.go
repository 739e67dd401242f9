package payorder

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteOption is one way for the payer to satisfy the order
type QuoteOption struct {
	Currency            string          `json:"currency"`
	DestinationCurrency string          `json:"destination_currency"`
	ImpliedAmount       decimal.Decimal `json:"implied_amount"`
	DestinationAmount   decimal.Decimal `json:"destination_amount"`
	ValueUSD            decimal.Decimal `json:"value_usd"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

// QuoteSnapshot is the immutable record of the quote a route is built from
type QuoteSnapshot struct {
	QuoteID   uuid.UUID     `json:"quote_id"`
	Options   []QuoteOption `json:"options"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// NewQuoteSnapshot freezes a set of options. The snapshot expires with its
// earliest option.
func NewQuoteSnapshot(options []QuoteOption, now time.Time) QuoteSnapshot {
	frozen := make([]QuoteOption, len(options))
	copy(frozen, options)

	var expiresAt time.Time
	for _, opt := range frozen {
		if expiresAt.IsZero() || opt.ExpiresAt.Before(expiresAt) {
			expiresAt = opt.ExpiresAt
		}
	}
	return QuoteSnapshot{
		QuoteID:   uuid.New(),
		Options:   frozen,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
}

// Find returns the option for a source currency
func (q QuoteSnapshot) Find(currencyID string) (QuoteOption, bool) {
	for _, opt := range q.Options {
		if opt.Currency == currencyID {
			return opt, true
		}
	}
	return QuoteOption{}, false
}

// IsExpired reports whether the snapshot can no longer back a route
func (q QuoteSnapshot) IsExpired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
