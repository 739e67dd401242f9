package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type failingRecorder struct{}

func (failingRecorder) RecordEvents(context.Context, *gorm.DB, ...shared.DomainEvent) error {
	return errors.New("outbox write failed")
}

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := setupPayOrderTestDB(t)
	require.NoError(t, event.AutoMigrateOutbox(db))
	return db
}

func outboxTypes(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var types []string
	require.NoError(t, db.Model(&event.OutboxRecord{}).Order("created_at, event_type").Pluck("event_type", &types).Error)
	return types
}

func TestGormPayOrderRepository_RecordsEvents(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewGormPayOrderRepository(db, WithEventRecorder(event.NewOutboxRecorder(event.NewEventSerializer())))
	ctx := context.Background()

	order := newRepoTestOrder(t, uuid.New(), 30*time.Minute)
	require.NoError(t, repo.Save(ctx, order))
	assert.Equal(t, []string{payorder.EventTypePayOrderCreated}, outboxTypes(t, db))
	order.ClearDomainEvents()

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)

	routeOrder(t, loaded, repoT0.Add(time.Minute))
	raised := len(loaded.GetDomainEvents())
	require.NotZero(t, raised)
	require.NoError(t, repo.SaveWithLock(ctx, loaded))
	assert.Len(t, outboxTypes(t, db), 1+raised)
	assert.Contains(t, outboxTypes(t, db), payorder.EventTypePayOrderAwaitingPayment)

	t.Run("a lost write records nothing", func(t *testing.T) {
		require.NoError(t, stale.Expire(repoT0.Add(time.Hour)))
		require.ErrorIs(t, repo.SaveWithLock(ctx, stale), payorder.ErrConcurrentTransitionConflict)

		types := outboxTypes(t, db)
		assert.Len(t, types, 1+raised)
		assert.NotContains(t, types, payorder.EventTypePayOrderExpired)
	})
}

func TestGormPayOrderRepository_RecorderFailureRollsBack(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewGormPayOrderRepository(db, WithEventRecorder(failingRecorder{}))
	ctx := context.Background()

	order := newRepoTestOrder(t, uuid.New(), 30*time.Minute)
	assert.EqualError(t, repo.Save(ctx, order), "outbox write failed")

	_, err := repo.FindByID(ctx, order.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormOrganizationRepository_RecordsEvents(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewGormOrganizationRepository(db, WithEventRecorder(event.NewOutboxRecorder(event.NewEventSerializer())))
	ctx := context.Background()

	org := newTestOrganization(t)
	require.NoError(t, repo.Save(ctx, org))
	org.ClearDomainEvents()

	require.NoError(t, org.RotateCredentials(time.Now().UTC()))
	require.NoError(t, repo.SaveWithLock(ctx, org))

	assert.ElementsMatch(t, []string{
		payorder.EventTypeOrganizationCreated,
		payorder.EventTypeOrganizationCredentialsRotated,
	}, outboxTypes(t, db))
}
