package persistence

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// payOrderSortColumns are the list keys callers may sort pay orders by.
// Anything else sorts by creation time.
var payOrderSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"expires_at": "expires_at",
	"status":     "status",
}

// orderPayOrders appends the ORDER BY for a listing. Column names come from
// payOrderSortColumns only; the id tie-breaker keeps pages stable.
func orderPayOrders(query *gorm.DB, key, dir string) *gorm.DB {
	column, ok := payOrderSortColumns[strings.TrimSpace(key)]
	if !ok {
		column = "created_at"
	}
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	return query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
}
