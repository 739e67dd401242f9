package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrganization(t *testing.T) *payorder.Organization {
	t.Helper()
	org, err := payorder.NewOrganization("Acme Coffee", uuid.New(), []payorder.SettlementCurrency{
		{CurrencyID: "usdc-eth", Address: "0xacme"},
		{CurrencyID: "sol", Address: "AcmeSo1"},
	})
	require.NoError(t, err)
	return org
}

func TestGormOrganizationRepository_SaveAndFind(t *testing.T) {
	db := setupPayOrderTestDB(t)
	repo := NewGormOrganizationRepository(db)
	ctx := context.Background()

	org := newTestOrganization(t)
	require.NoError(t, repo.Save(ctx, org))

	t.Run("by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Coffee", got.Name)
		assert.Equal(t, org.OwnerID, got.OwnerID)
		assert.Equal(t, org.APISecret, got.APISecret)
		assert.Equal(t, []string{"usdc-eth", "sol"}, got.SettlementCurrencyIDs())
		addr, ok := got.SettlementAddress("sol")
		assert.True(t, ok)
		assert.Equal(t, "AcmeSo1", addr)
	})

	t.Run("by api key", func(t *testing.T) {
		got, err := repo.FindByAPIKey(ctx, org.APIKey)
		require.NoError(t, err)
		assert.Equal(t, org.ID, got.ID)

		_, err = repo.FindByAPIKey(ctx, "nope")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("exists by api key", func(t *testing.T) {
		exists, err := repo.ExistsByAPIKey(ctx, org.APIKey)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByAPIKey(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, org), shared.ErrAlreadyExists)
	})
}

func TestGormOrganizationRepository_SaveWithLock(t *testing.T) {
	db := setupPayOrderTestDB(t)
	repo := NewGormOrganizationRepository(db)
	ctx := context.Background()

	org := newTestOrganization(t)
	require.NoError(t, repo.Save(ctx, org))

	stale, err := repo.FindByID(ctx, org.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	oldKey := org.APIKey
	require.NoError(t, org.RotateCredentials(now))
	require.NoError(t, org.ReplaceSettlementCurrencies([]payorder.SettlementCurrency{{CurrencyID: "btc", Address: "bc1acme"}}, now))
	require.NoError(t, repo.SaveWithLock(ctx, org))
	assert.Equal(t, 2, org.Version)

	got, err := repo.FindByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.NotEqual(t, oldKey, got.APIKey)
	assert.Equal(t, []string{"btc"}, got.SettlementCurrencyIDs())

	_, err = repo.FindByAPIKey(ctx, oldKey)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	t.Run("stale version conflicts", func(t *testing.T) {
		require.NoError(t, stale.RotateCredentials(now))
		assert.ErrorIs(t, repo.SaveWithLock(ctx, stale), shared.ErrConcurrencyConflict)
	})

	t.Run("missing organization", func(t *testing.T) {
		assert.ErrorIs(t, repo.SaveWithLock(ctx, newTestOrganization(t)), shared.ErrNotFound)
	})
}
