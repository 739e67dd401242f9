package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPayOrderRepository implements payorder.Repository using GORM
type GormPayOrderRepository struct {
	db   *gorm.DB
	opts repositoryOptions
}

// NewGormPayOrderRepository creates a new GormPayOrderRepository
func NewGormPayOrderRepository(db *gorm.DB, opts ...RepositoryOption) *GormPayOrderRepository {
	return &GormPayOrderRepository{db: db, opts: applyRepositoryOptions(opts)}
}

// expirableStatuses are the non-terminal statuses an order can hold without a transaction
var expirableStatuses = []payorder.Status{payorder.StatusPending, payorder.StatusAwaitingPayment}

// confirmationTimedOut matches AWAITING_CONFIRMATION orders past their confirm_deadline
const confirmationTimedOut = "status = ? AND confirm_deadline IS NOT NULL AND confirm_deadline <= ?"

func preloadTransitions(db *gorm.DB) *gorm.DB {
	return db.Preload("Transitions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence ASC")
	})
}

// FindByID finds a pay order by its ID
func (r *GormPayOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*payorder.PayOrder, error) {
	var model models.PayOrderModel
	if err := preloadTransitions(r.db.WithContext(ctx)).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForOrganization finds a pay order by ID within an organization
func (r *GormPayOrderRepository) FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*payorder.PayOrder, error) {
	var model models.PayOrderModel
	if err := preloadTransitions(r.db.WithContext(ctx)).
		Where("organization_id = ? AND id = ?", organizationID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForOrganization lists an organization's pay orders with filtering and paging
func (r *GormPayOrderRepository) FindAllForOrganization(ctx context.Context, organizationID uuid.UUID, filter shared.Filter) ([]payorder.PayOrder, error) {
	var rows []models.PayOrderModel
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&models.PayOrderModel{}).Where("organization_id = ?", organizationID),
		filter,
	)
	if err := preloadTransitions(query).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// CountForOrganization counts an organization's pay orders with the same filters
func (r *GormPayOrderRepository) CountForOrganization(ctx context.Context, organizationID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.PayOrderModel{}).Where("organization_id = ?", organizationID)
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindExpirable returns open orders whose deadline has passed, earliest
// deadline first: orders without a transaction past expires_at, and orders
// whose transaction did not confirm before confirm_deadline
func (r *GormPayOrderRepository) FindExpirable(ctx context.Context, now time.Time, limit int) ([]payorder.PayOrder, error) {
	db := r.db.WithContext(ctx)
	var rows []models.PayOrderModel
	if err := preloadTransitions(db).
		Where(db.Where("status IN ? AND (tx_hash IS NULL OR tx_hash = '') AND expires_at <= ?", expirableStatuses, now).
			Or(confirmationTimedOut, payorder.StatusAwaitingConfirmation, now)).
		Order("COALESCE(confirm_deadline, expires_at) ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// FindByStatus returns orders in a status, least recently updated first
func (r *GormPayOrderRepository) FindByStatus(ctx context.Context, status payorder.Status, limit int) ([]payorder.PayOrder, error) {
	var rows []models.PayOrderModel
	if err := preloadTransitions(r.db.WithContext(ctx)).
		Where("status = ?", status).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// Save inserts a new pay order together with its audit trail
func (r *GormPayOrderRepository) Save(ctx context.Context, order *payorder.PayOrder) error {
	model := models.PayOrderModelFromDomain(order)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Transitions").Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists
			}
			return err
		}
		if err := insertTransitions(tx, model.Transitions); err != nil {
			return err
		}
		return r.opts.record(ctx, tx, order.GetDomainEvents())
	})
}

// SaveWithLock writes the order only if the stored version still equals
// order.Version, then appends any new transition rows in the same transaction.
// On success order.Version is incremented.
func (r *GormPayOrderRepository) SaveWithLock(ctx context.Context, order *payorder.PayOrder) error {
	model := models.PayOrderModelFromDomain(order)
	expected := order.Version
	model.Version = expected + 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PayOrderModel{}).
			Where("id = ? AND version = ?", order.ID, expected).
			Updates(model.UpdateColumns())
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.PayOrderModel{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			return payorder.ErrConcurrentTransitionConflict
		}

		if err := insertTransitions(tx, model.Transitions); err != nil {
			return err
		}
		return r.opts.record(ctx, tx, order.GetDomainEvents())
	})
	if err != nil {
		return err
	}

	order.IncrementVersion()
	return nil
}

// insertTransitions appends audit rows. Rows already stored are skipped, so the
// full trail can be written on every save.
func insertTransitions(tx *gorm.DB, rows []models.PayOrderTransitionModel) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func toDomainOrders(rows []models.PayOrderModel) []payorder.PayOrder {
	orders := make([]payorder.PayOrder, len(rows))
	for i := range rows {
		orders[i] = *rows[i].ToDomain()
	}
	return orders
}

// applyFilter applies filter options to the query
func (r *GormPayOrderRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	return orderPayOrders(query, filter.OrderBy, filter.OrderDir)
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormPayOrderRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "tx_hash":
			query = query.Where("tx_hash = ?", value)
		}
	}
	return query
}

// Ensure GormPayOrderRepository implements payorder.Repository
var _ payorder.Repository = (*GormPayOrderRepository)(nil)
