//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/event"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/migration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a throwaway PostgreSQL container and applies the
// embedded migrations to it
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("payorder_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())

	status, err := m.Status()
	require.NoError(t, err)
	assert.True(t, status.UpToDate())
	assert.Equal(t, uint(5), status.Current)
	return db
}

// ==================== PostgreSQL round trips ====================

func TestPostgres_PayOrderLifecycle(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	orgs := NewGormOrganizationRepository(db)
	orders := NewGormPayOrderRepository(db)

	org := newTestOrganization(t)
	require.NoError(t, orgs.Save(ctx, org))

	byKey, err := orgs.FindByAPIKey(ctx, org.APIKey)
	require.NoError(t, err)
	assert.Equal(t, org.ID, byKey.ID)

	order := newRepoTestOrder(t, org.ID, 30*time.Minute)
	require.NoError(t, orders.Save(ctx, order))
	assert.ErrorIs(t, orders.Save(ctx, order), shared.ErrAlreadyExists)

	loaded, err := orders.FindByIDForOrganization(ctx, org.ID, order.ID)
	require.NoError(t, err)
	stale, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)

	routeOrder(t, loaded, repoT0.Add(time.Minute))
	require.NoError(t, orders.SaveWithLock(ctx, loaded))

	t.Run("jsonb and decimal columns survive", func(t *testing.T) {
		got, err := orders.FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, payorder.StatusAwaitingPayment, got.Status)
		require.NotNil(t, got.Route)
		assert.Equal(t, "0xdeposit", got.Route.DepositAddress)
		require.NotNil(t, got.DestinationValueUSD)
		assert.Equal(t, "100.25", got.DestinationValueUSD.String())
		assert.Equal(t, "c-42", got.Metadata["cart"])
		require.Len(t, got.Transitions, 2)
	})

	t.Run("stale writer loses", func(t *testing.T) {
		require.NoError(t, stale.Expire(repoT0.Add(time.Hour)))
		err := orders.SaveWithLock(ctx, stale)
		assert.ErrorIs(t, err, payorder.ErrConcurrentTransitionConflict)
	})

	t.Run("expiry sweep candidates", func(t *testing.T) {
		due, err := orders.FindExpirable(ctx, repoT0.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, order.ID, due[0].ID)

		none, err := orders.FindExpirable(ctx, repoT0, 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestPostgres_Outbox(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	recorder := WithEventRecorder(event.NewOutboxRecorder(event.NewEventSerializer()))
	orgs := NewGormOrganizationRepository(db, recorder)
	orders := NewGormPayOrderRepository(db, recorder)

	org := newTestOrganization(t)
	require.NoError(t, orgs.Save(ctx, org))
	require.NoError(t, orders.Save(ctx, newRepoTestOrder(t, org.ID, 30*time.Minute)))

	outbox := event.NewGormOutboxRepository(db)
	pending, err := outbox.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := []uuid.UUID{pending[0].ID, pending[1].ID}
	claimed, err := outbox.MarkProcessing(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	again, err := outbox.MarkProcessing(ctx, ids)
	require.NoError(t, err)
	assert.Empty(t, again, "processing rows are not claimed twice")

	counts, err := outbox.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[shared.OutboxStatusProcessing])
}

func TestPostgres_MigrationsRollBack(t *testing.T) {
	db := setupPostgres(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Down())

	status, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.Current)
	assert.False(t, status.UpToDate())
	assert.False(t, db.Migrator().HasTable("pay_orders"))
}
