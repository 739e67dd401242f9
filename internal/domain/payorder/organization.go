package payorder

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeOrganization = "Organization"

// Event type constants
const (
	EventTypeOrganizationCreated            = "OrganizationCreated"
	EventTypeSettlementCurrenciesReplaced   = "OrganizationSettlementCurrenciesReplaced"
	EventTypeOrganizationCredentialsRotated = "OrganizationCredentialsRotated"
)

// SettlementCurrency is a currency the organization receives, and where
type SettlementCurrency struct {
	CurrencyID string `json:"currency_id"`
	Address    string `json:"address"`
}

// Organization represents a merchant using the payment system
type Organization struct {
	shared.BaseAggregateRoot
	Name                 string
	APIKey               string
	APISecret            string
	OwnerID              uuid.UUID
	SettlementCurrencies []SettlementCurrency
}

// OrganizationEvent is raised for organization lifecycle changes
type OrganizationEvent struct {
	shared.BaseDomainEvent
	Name string `json:"name"`
}

func newOrganizationEvent(eventType string, org *Organization, at time.Time) *OrganizationEvent {
	return &OrganizationEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeOrganization, org.ID, org.ID, at),
		Name:            org.Name,
	}
}

// NewOrganization creates an organization with freshly generated credentials
func NewOrganization(name string, ownerID uuid.UUID, settlement []SettlementCurrency) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Organization name cannot be empty")
	}
	if len(name) > 255 {
		return nil, shared.NewDomainError("INVALID_NAME", "Organization name cannot exceed 255 characters")
	}
	if ownerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_OWNER", "Owner ID cannot be empty")
	}

	org := &Organization{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(time.Now().UTC()),
		Name:              name,
		OwnerID:           ownerID,
	}
	if err := org.setSettlementCurrencies(settlement); err != nil {
		return nil, err
	}
	if err := org.issueCredentials(); err != nil {
		return nil, err
	}

	org.AddDomainEvent(newOrganizationEvent(EventTypeOrganizationCreated, org, org.CreatedAt))

	return org, nil
}

// ReplaceSettlementCurrencies swaps the whole settlement list.
// currency_id must be unique within the list.
func (o *Organization) ReplaceSettlementCurrencies(settlement []SettlementCurrency, now time.Time) error {
	if err := o.setSettlementCurrencies(settlement); err != nil {
		return err
	}
	o.Touch(now)
	o.AddDomainEvent(newOrganizationEvent(EventTypeSettlementCurrenciesReplaced, o, now))
	return nil
}

// RotateCredentials issues a new API key and secret pair
func (o *Organization) RotateCredentials(now time.Time) error {
	if err := o.issueCredentials(); err != nil {
		return err
	}
	o.Touch(now)
	o.AddDomainEvent(newOrganizationEvent(EventTypeOrganizationCredentialsRotated, o, now))
	return nil
}

// SettlementAddress returns where the organization receives a currency
func (o *Organization) SettlementAddress(currencyID string) (string, bool) {
	for _, sc := range o.SettlementCurrencies {
		if sc.CurrencyID == currencyID {
			return sc.Address, true
		}
	}
	return "", false
}

// SettlementCurrencyIDs returns the settlement currency IDs in configured order
func (o *Organization) SettlementCurrencyIDs() []string {
	ids := make([]string, len(o.SettlementCurrencies))
	for i, sc := range o.SettlementCurrencies {
		ids[i] = sc.CurrencyID
	}
	return ids
}

func (o *Organization) setSettlementCurrencies(settlement []SettlementCurrency) error {
	seen := make(map[string]struct{}, len(settlement))
	cleaned := make([]SettlementCurrency, 0, len(settlement))
	for _, sc := range settlement {
		id := strings.TrimSpace(sc.CurrencyID)
		addr := strings.TrimSpace(sc.Address)
		if id == "" {
			return shared.NewDomainError("INVALID_SETTLEMENT_CURRENCY", "Settlement currency ID cannot be empty")
		}
		if addr == "" {
			return shared.NewDomainError("INVALID_SETTLEMENT_CURRENCY", fmt.Sprintf("Settlement currency %s has no address", id))
		}
		if _, dup := seen[id]; dup {
			return shared.NewDomainError("DUPLICATE_SETTLEMENT_CURRENCY", fmt.Sprintf("Settlement currency %s is listed more than once", id))
		}
		seen[id] = struct{}{}
		cleaned = append(cleaned, SettlementCurrency{CurrencyID: id, Address: addr})
	}
	o.SettlementCurrencies = cleaned
	return nil
}

func (o *Organization) issueCredentials() error {
	key, err := randomHex(16)
	if err != nil {
		return err
	}
	secret, err := randomHex(32)
	if err != nil {
		return err
	}
	o.APIKey = key
	o.APISecret = secret
	return nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate credentials: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
