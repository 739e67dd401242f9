package payorder

import (
	"context"
	"errors"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCredentialAttempts = 3

// OrganizationService manages organizations and their API credentials
type OrganizationService struct {
	repo       payorder.OrganizationRepository
	currencies payorder.CurrencyResolver
	publisher  shared.EventPublisher
	logger     *zap.Logger
}

// NewOrganizationService creates a new OrganizationService
func NewOrganizationService(
	repo payorder.OrganizationRepository,
	currencies payorder.CurrencyResolver,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *OrganizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{
		repo:       repo,
		currencies: currencies,
		publisher:  publisher,
		logger:     logger,
	}
}

// Create registers an organization and returns its credentials
func (s *OrganizationService) Create(ctx context.Context, req CreateOrganizationRequest) (*CredentialsResponse, error) {
	settlement := toSettlementCurrencies(req.SettlementCurrencies)
	if err := s.checkCurrencies(settlement); err != nil {
		return nil, err
	}

	org, err := payorder.NewOrganization(req.Name, req.OwnerID, settlement)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueKey(ctx, org); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, org); err != nil {
		return nil, err
	}
	s.publish(ctx, org)

	s.logger.Info("Organization created",
		zap.String("organization_id", org.ID.String()),
		zap.String("name", org.Name),
	)

	return &CredentialsResponse{OrganizationID: org.ID, APIKey: org.APIKey, APISecret: org.APISecret}, nil
}

// Get retrieves an organization
func (s *OrganizationService) Get(ctx context.Context, id uuid.UUID) (*OrganizationResponse, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToOrganizationResponse(org)
	return &resp, nil
}

// Authenticate resolves the organization owning an API key
func (s *OrganizationService) Authenticate(ctx context.Context, apiKey string) (*payorder.Organization, error) {
	if apiKey == "" {
		return nil, shared.ErrUnauthorized
	}
	org, err := s.repo.FindByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	return org, nil
}

// ReplaceSettlementCurrencies swaps the organization's settlement list
func (s *OrganizationService) ReplaceSettlementCurrencies(ctx context.Context, id uuid.UUID, req UpdateSettlementCurrenciesRequest) (*OrganizationResponse, error) {
	settlement := toSettlementCurrencies(req.SettlementCurrencies)
	if err := s.checkCurrencies(settlement); err != nil {
		return nil, err
	}

	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := org.ReplaceSettlementCurrencies(settlement, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithLock(ctx, org); err != nil {
		return nil, err
	}
	s.publish(ctx, org)

	resp := ToOrganizationResponse(org)
	return &resp, nil
}

// RotateCredentials issues a new API key and secret. The old pair stops
// working immediately.
func (s *OrganizationService) RotateCredentials(ctx context.Context, id uuid.UUID) (*CredentialsResponse, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := org.RotateCredentials(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueKey(ctx, org); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithLock(ctx, org); err != nil {
		return nil, err
	}
	s.publish(ctx, org)

	s.logger.Info("Organization credentials rotated", zap.String("organization_id", org.ID.String()))

	return &CredentialsResponse{OrganizationID: org.ID, APIKey: org.APIKey, APISecret: org.APISecret}, nil
}

func (s *OrganizationService) ensureUniqueKey(ctx context.Context, org *payorder.Organization) error {
	for range maxCredentialAttempts {
		exists, err := s.repo.ExistsByAPIKey(ctx, org.APIKey)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if err := org.RotateCredentials(time.Now().UTC()); err != nil {
			return err
		}
	}
	return shared.NewDomainError("CREDENTIALS_UNAVAILABLE", "Could not issue unique API credentials")
}

func (s *OrganizationService) checkCurrencies(settlement []payorder.SettlementCurrency) error {
	for _, sc := range settlement {
		if _, err := s.currencies.Lookup(sc.CurrencyID); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrganizationService) publish(ctx context.Context, org *payorder.Organization) {
	events := org.GetDomainEvents()
	org.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish organization events",
			zap.String("organization_id", org.ID.String()),
			zap.Error(err),
		)
	}
}
