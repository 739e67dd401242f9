package payorder

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationStatus is the verifier's verdict on a submitted transaction
type VerificationStatus string

const (
	VerificationMatch       VerificationStatus = "MATCH"
	VerificationMismatch    VerificationStatus = "MISMATCH"
	VerificationUnconfirmed VerificationStatus = "UNCONFIRMED"
	VerificationNotFound    VerificationStatus = "NOT_FOUND"
)

// VerificationResult is evidence about one transaction. It never mutates an order.
type VerificationResult struct {
	Status                VerificationStatus `json:"status"`
	TxHash                string             `json:"tx_hash"`
	AmountObserved        decimal.Decimal    `json:"amount_observed"`
	Confirmations         uint64             `json:"confirmations"`
	RequiredConfirmations uint64             `json:"required_confirmations"`
	TxTimestamp           time.Time          `json:"tx_timestamp,omitempty"`
	Reason                string             `json:"reason,omitempty"`
	ObservedAt            time.Time          `json:"observed_at"`
}

// Qualifies reports whether the transaction pays the order, confirmed or not
func (r VerificationResult) Qualifies() bool {
	return r.Status == VerificationMatch || r.Status == VerificationUnconfirmed
}
