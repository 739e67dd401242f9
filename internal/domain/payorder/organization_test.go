package payorder

import (
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrganization(t *testing.T) {
	t.Run("generates credentials", func(t *testing.T) {
		org, err := NewOrganization("Acme", uuid.New(), []SettlementCurrency{
			{CurrencyID: "usdc-eth", Address: "0xmerchant"},
		})
		require.NoError(t, err)

		assert.Len(t, org.APIKey, 32)
		assert.Len(t, org.APISecret, 64)
		assert.Equal(t, 1, org.Version)
		require.Len(t, org.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeOrganizationCreated, org.GetDomainEvents()[0].EventType())
	})

	t.Run("rejects duplicate settlement currency", func(t *testing.T) {
		_, err := NewOrganization("Acme", uuid.New(), []SettlementCurrency{
			{CurrencyID: "usdc-eth", Address: "0xa"},
			{CurrencyID: "usdc-eth", Address: "0xb"},
		})
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "DUPLICATE_SETTLEMENT_CURRENCY", de.Code)
	})

	t.Run("rejects empty name and owner", func(t *testing.T) {
		_, err := NewOrganization(" ", uuid.New(), nil)
		assert.Error(t, err)
		_, err = NewOrganization("Acme", uuid.Nil, nil)
		assert.Error(t, err)
	})
}

func TestOrganization_ReplaceSettlementCurrencies(t *testing.T) {
	org, err := NewOrganization("Acme", uuid.New(), nil)
	require.NoError(t, err)
	org.ClearDomainEvents()

	err = org.ReplaceSettlementCurrencies([]SettlementCurrency{
		{CurrencyID: "usdc-eth", Address: " 0xabc "},
		{CurrencyID: "usdc-sol", Address: "So1ana"},
	}, time.Now())
	require.NoError(t, err)

	addr, ok := org.SettlementAddress("usdc-eth")
	assert.True(t, ok)
	assert.Equal(t, "0xabc", addr)
	assert.Equal(t, []string{"usdc-eth", "usdc-sol"}, org.SettlementCurrencyIDs())
	assert.True(t, org.HasPendingEvents())

	err = org.ReplaceSettlementCurrencies([]SettlementCurrency{{CurrencyID: "x", Address: ""}}, time.Now())
	assert.Error(t, err)
	// failed replacement keeps the previous list
	assert.Len(t, org.SettlementCurrencies, 2)
}

func TestOrganization_RotateCredentials(t *testing.T) {
	org, err := NewOrganization("Acme", uuid.New(), nil)
	require.NoError(t, err)
	oldKey, oldSecret := org.APIKey, org.APISecret

	require.NoError(t, org.RotateCredentials(time.Now()))
	assert.NotEqual(t, oldKey, org.APIKey)
	assert.NotEqual(t, oldSecret, org.APISecret)
}
