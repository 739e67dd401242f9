// Package models holds the GORM rows behind the pay order aggregates.
//
// Domain types carry no ORM tags. Each model here owns its table mapping and
// converts with ToDomain and FromDomain. Amounts are stored as decimal(38,18)
// and nested value objects (quote, route, metadata) as jsonb through JSON[T].
// The transition trail lives in pay_order_transitions, keyed by order and
// sequence, and is only ever appended to.
package models
