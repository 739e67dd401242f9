package persistence

import (
	"context"
	"errors"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOrganizationRepository implements payorder.OrganizationRepository using GORM
type GormOrganizationRepository struct {
	db   *gorm.DB
	opts repositoryOptions
}

// NewGormOrganizationRepository creates a new GormOrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB, opts ...RepositoryOption) *GormOrganizationRepository {
	return &GormOrganizationRepository{db: db, opts: applyRepositoryOptions(opts)}
}

// FindByID finds an organization by its ID
func (r *GormOrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*payorder.Organization, error) {
	var model models.OrganizationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByAPIKey finds an organization by its API key
func (r *GormOrganizationRepository) FindByAPIKey(ctx context.Context, apiKey string) (*payorder.Organization, error) {
	var model models.OrganizationModel
	if err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByAPIKey checks if an API key is already issued
func (r *GormOrganizationRepository) ExistsByAPIKey(ctx context.Context, apiKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrganizationModel{}).
		Where("api_key = ?", apiKey).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save inserts a new organization
func (r *GormOrganizationRepository) Save(ctx context.Context, org *payorder.Organization) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.OrganizationModelFromDomain(org)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists
			}
			return err
		}
		return r.opts.record(ctx, tx, org.GetDomainEvents())
	})
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormOrganizationRepository) SaveWithLock(ctx context.Context, org *payorder.Organization) error {
	model := models.OrganizationModelFromDomain(org)
	expected := org.Version

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrganizationModel{}).
			Where("id = ? AND version = ?", org.ID, expected).
			Updates(map[string]interface{}{
				"name":                  model.Name,
				"api_key":               model.APIKey,
				"api_secret":            model.APISecret,
				"settlement_currencies": model.SettlementCurrencies,
				"version":               expected + 1,
				"updated_at":            model.UpdatedAt,
			})
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			found, err := organizationExists(tx, org.ID)
			if err != nil {
				return err
			}
			if !found {
				return shared.ErrNotFound
			}
			return shared.ErrConcurrencyConflict
		}
		return r.opts.record(ctx, tx, org.GetDomainEvents())
	})
	if err != nil {
		return err
	}

	org.IncrementVersion()
	return nil
}

func organizationExists(tx *gorm.DB, id uuid.UUID) (bool, error) {
	var count int64
	if err := tx.Model(&models.OrganizationModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormOrganizationRepository implements payorder.OrganizationRepository
var _ payorder.OrganizationRepository = (*GormOrganizationRepository)(nil)
