package payorder

import (
	"context"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository defines the interface for pay order persistence
type Repository interface {
	// FindByID finds a pay order by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PayOrder, error)

	// FindByIDForOrganization finds a pay order by ID owned by an organization
	FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*PayOrder, error)

	// FindAllForOrganization lists an organization's pay orders.
	// Supported filter keys: "status".
	FindAllForOrganization(ctx context.Context, organizationID uuid.UUID, filter shared.Filter) ([]PayOrder, error)

	// CountForOrganization counts an organization's pay orders with the same filter keys
	CountForOrganization(ctx context.Context, organizationID uuid.UUID, filter shared.Filter) (int64, error)

	// FindExpirable returns orders without a transaction whose expires_at has
	// passed, and AWAITING_CONFIRMATION orders past their confirm deadline
	FindExpirable(ctx context.Context, now time.Time, limit int) ([]PayOrder, error)

	// FindByStatus returns orders in a status, oldest update first
	FindByStatus(ctx context.Context, status Status, limit int) ([]PayOrder, error)

	// Save inserts a new pay order with its audit trail
	Save(ctx context.Context, order *PayOrder) error

	// SaveWithLock updates with optimistic locking (version check) and appends
	// new transition records in the same transaction. A lost race returns
	// ErrConcurrentTransitionConflict.
	SaveWithLock(ctx context.Context, order *PayOrder) error
}

// OrganizationRepository defines the interface for organization persistence
type OrganizationRepository interface {
	// FindByID finds an organization by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)

	// FindByAPIKey finds an organization by its API key
	FindByAPIKey(ctx context.Context, apiKey string) (*Organization, error)

	// ExistsByAPIKey checks whether an API key is already issued
	ExistsByAPIKey(ctx context.Context, apiKey string) (bool, error)

	// Save inserts a new organization
	Save(ctx context.Context, org *Organization) error

	// SaveWithLock updates with optimistic locking (version check)
	SaveWithLock(ctx context.Context, org *Organization) error
}
