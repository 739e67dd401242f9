package persistence

import (
	"testing"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestOrderPayOrders(t *testing.T) {
	db := setupPayOrderTestDB(t)

	orderSQL := func(key, dir string) string {
		return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
			var rows []models.PayOrderModel
			return orderPayOrders(tx.Model(&models.PayOrderModel{}), key, dir).Find(&rows)
		})
	}

	tests := []struct {
		name, key, dir, want string
	}{
		{"defaults", "", "", "ORDER BY `created_at` DESC,`id`"},
		{"known column ascending", "expires_at", " ASC ", "ORDER BY `expires_at`,`id`"},
		{"unknown direction sorts descending", "status", "sideways", "ORDER BY `status` DESC,`id`"},
		{"column outside whitelist", "api_secret", "asc", "ORDER BY `created_at`,`id`"},
		{"injection attempt", "status; DROP TABLE pay_orders", "desc", "ORDER BY `created_at` DESC,`id`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, orderSQL(tt.key, tt.dir), tt.want)
		})
	}
}
