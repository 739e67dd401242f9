package models

import (
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayOrderModel is the persistence model for the PayOrder aggregate
type PayOrderModel struct {
	OwnedAggregateModel
	Mode                payorder.Mode                 `gorm:"type:varchar(20);not null"`
	Status              payorder.Status               `gorm:"type:varchar(30);not null;default:'PENDING';index:idx_pay_orders_status_expires,priority:1"`
	SourceCurrency      string                        `gorm:"type:varchar(64)"`
	DestinationCurrency string                        `gorm:"type:varchar(64)"`
	DestinationAddress  string                        `gorm:"type:varchar(255)"`
	RefundAddress       string                        `gorm:"type:varchar(255)"`
	AmountExpected      decimal.Decimal               `gorm:"type:decimal(38,18);not null;default:0"`
	DestinationValueUSD decimal.NullDecimal           `gorm:"type:decimal(38,18)"`
	AmountReceived      decimal.NullDecimal           `gorm:"type:decimal(38,18)"`
	TxHash              string                        `gorm:"type:varchar(128);index"`
	Quote               JSON[*payorder.QuoteSnapshot] `gorm:"type:jsonb"`
	Route               JSON[*payorder.RouteDetails]  `gorm:"type:jsonb"`
	MismatchCount       int                           `gorm:"not null;default:0"`
	RejectedTxHashes    JSON[[]string]                `gorm:"type:jsonb"`
	Metadata            JSON[map[string]string]       `gorm:"type:jsonb"`
	ExpiresAt           time.Time                     `gorm:"not null;index:idx_pay_orders_status_expires,priority:2"`
	ConfirmDeadline     *time.Time                    `gorm:"index:idx_pay_orders_confirm_deadline"`
	Transitions         []PayOrderTransitionModel     `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (PayOrderModel) TableName() string {
	return "pay_orders"
}

// ToDomain converts the persistence model to a domain PayOrder aggregate.
// Transitions are included only when they were preloaded.
func (m *PayOrderModel) ToDomain() *payorder.PayOrder {
	order := &payorder.PayOrder{
		OwnedAggregateRoot:  m.owned(),
		Mode:                m.Mode,
		Status:              m.Status,
		SourceCurrency:      m.SourceCurrency,
		DestinationCurrency: m.DestinationCurrency,
		DestinationAddress:  m.DestinationAddress,
		RefundAddress:       m.RefundAddress,
		AmountExpected:      m.AmountExpected,
		TxHash:              m.TxHash,
		Quote:               m.Quote.Data,
		Route:               m.Route.Data,
		MismatchCount:       m.MismatchCount,
		RejectedTxHashes:    m.RejectedTxHashes.Data,
		Metadata:            m.Metadata.Data,
		ExpiresAt:           m.ExpiresAt,
		ConfirmDeadline:     m.ConfirmDeadline,
		Transitions:         make([]payorder.TransitionRecord, 0, len(m.Transitions)),
	}
	if m.DestinationValueUSD.Valid {
		v := m.DestinationValueUSD.Decimal
		order.DestinationValueUSD = &v
	}
	if m.AmountReceived.Valid {
		v := m.AmountReceived.Decimal
		order.AmountReceived = &v
	}
	if order.RejectedTxHashes == nil {
		order.RejectedTxHashes = make([]string, 0)
	}
	if order.Metadata == nil {
		order.Metadata = make(map[string]string)
	}
	for i := range m.Transitions {
		order.Transitions = append(order.Transitions, m.Transitions[i].ToDomain())
	}
	return order
}

// FromDomain populates the persistence model from a domain PayOrder
func (m *PayOrderModel) FromDomain(o *payorder.PayOrder) {
	m.fromOwned(o.OwnedAggregateRoot)
	m.Mode = o.Mode
	m.Status = o.Status
	m.SourceCurrency = o.SourceCurrency
	m.DestinationCurrency = o.DestinationCurrency
	m.DestinationAddress = o.DestinationAddress
	m.RefundAddress = o.RefundAddress
	m.AmountExpected = o.AmountExpected
	m.DestinationValueUSD = nullDecimal(o.DestinationValueUSD)
	m.AmountReceived = nullDecimal(o.AmountReceived)
	m.TxHash = o.TxHash
	m.Quote = NewJSON(o.Quote)
	m.Route = NewJSON(o.Route)
	m.MismatchCount = o.MismatchCount
	m.RejectedTxHashes = NewJSON(o.RejectedTxHashes)
	m.Metadata = NewJSON(o.Metadata)
	m.ExpiresAt = o.ExpiresAt
	m.ConfirmDeadline = o.ConfirmDeadline
	m.Transitions = make([]PayOrderTransitionModel, 0, len(o.Transitions))
	for i, t := range o.Transitions {
		m.Transitions = append(m.Transitions, PayOrderTransitionModelFromDomain(t, i+1))
	}
}

// PayOrderModelFromDomain creates a new persistence model from domain PayOrder
func PayOrderModelFromDomain(o *payorder.PayOrder) *PayOrderModel {
	m := &PayOrderModel{}
	m.FromDomain(o)
	return m
}

// UpdateColumns returns the mutable columns written by a versioned update
func (m *PayOrderModel) UpdateColumns() map[string]interface{} {
	return map[string]interface{}{
		"status":               m.Status,
		"source_currency":      m.SourceCurrency,
		"destination_currency": m.DestinationCurrency,
		"destination_address":  m.DestinationAddress,
		"refund_address":       m.RefundAddress,
		"amount_received":      m.AmountReceived,
		"tx_hash":              m.TxHash,
		"quote":                m.Quote,
		"route":                m.Route,
		"mismatch_count":       m.MismatchCount,
		"rejected_tx_hashes":   m.RejectedTxHashes,
		"metadata":             m.Metadata,
		"expires_at":           m.ExpiresAt,
		"confirm_deadline":     m.ConfirmDeadline,
		"version":              m.Version,
		"updated_at":           m.UpdatedAt,
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// PayOrderTransitionModel is one row of a pay order's audit trail.
// Rows are append-only; Sequence orders them within an order.
type PayOrderTransitionModel struct {
	ID         uuid.UUID                `gorm:"type:uuid;primary_key"`
	OrderID    uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:idx_pay_order_transitions_seq,priority:1"`
	Sequence   int                      `gorm:"not null;uniqueIndex:idx_pay_order_transitions_seq,priority:2"`
	FromStatus payorder.Status          `gorm:"type:varchar(30)"`
	ToStatus   payorder.Status          `gorm:"type:varchar(30);not null"`
	Event      payorder.TransitionEvent `gorm:"type:varchar(40);not null"`
	Evidence   JSON[payorder.Evidence]  `gorm:"type:jsonb"`
	OccurredAt time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PayOrderTransitionModel) TableName() string {
	return "pay_order_transitions"
}

// ToDomain converts the persistence model to a domain TransitionRecord
func (m *PayOrderTransitionModel) ToDomain() payorder.TransitionRecord {
	return payorder.TransitionRecord{
		ID:         m.ID,
		OrderID:    m.OrderID,
		From:       m.FromStatus,
		To:         m.ToStatus,
		Event:      m.Event,
		Evidence:   m.Evidence.Data,
		OccurredAt: m.OccurredAt,
	}
}

// PayOrderTransitionModelFromDomain creates a transition row at a position in the trail
func PayOrderTransitionModelFromDomain(t payorder.TransitionRecord, sequence int) PayOrderTransitionModel {
	return PayOrderTransitionModel{
		ID:         t.ID,
		OrderID:    t.OrderID,
		Sequence:   sequence,
		FromStatus: t.From,
		ToStatus:   t.To,
		Event:      t.Event,
		Evidence:   NewJSON(t.Evidence),
		OccurredAt: t.OccurredAt,
	}
}
