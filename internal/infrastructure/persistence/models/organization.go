package models

import (
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/google/uuid"
)

// OrganizationModel is the persistence model for the Organization aggregate
type OrganizationModel struct {
	AggregateModel
	Name                 string                              `gorm:"type:varchar(255);not null"`
	APIKey               string                              `gorm:"column:api_key;type:varchar(64);not null;uniqueIndex"`
	APISecret            string                              `gorm:"column:api_secret;type:varchar(128);not null"`
	OwnerID              uuid.UUID                           `gorm:"type:uuid;not null;index"`
	SettlementCurrencies JSON[[]payorder.SettlementCurrency] `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (OrganizationModel) TableName() string {
	return "organizations"
}

// ToDomain converts the persistence model to a domain Organization
func (m *OrganizationModel) ToDomain() *payorder.Organization {
	settlement := m.SettlementCurrencies.Data
	if settlement == nil {
		settlement = make([]payorder.SettlementCurrency, 0)
	}
	return &payorder.Organization{
		BaseAggregateRoot:    m.root(),
		Name:                 m.Name,
		APIKey:               m.APIKey,
		APISecret:            m.APISecret,
		OwnerID:              m.OwnerID,
		SettlementCurrencies: settlement,
	}
}

// FromDomain populates the persistence model from a domain Organization
func (m *OrganizationModel) FromDomain(o *payorder.Organization) {
	m.fromRoot(o.BaseAggregateRoot)
	m.Name = o.Name
	m.APIKey = o.APIKey
	m.APISecret = o.APISecret
	m.OwnerID = o.OwnerID
	m.SettlementCurrencies = NewJSON(o.SettlementCurrencies)
}

// OrganizationModelFromDomain creates a new persistence model from domain Organization
func OrganizationModelFromDomain(o *payorder.Organization) *OrganizationModel {
	m := &OrganizationModel{}
	m.FromDomain(o)
	return m
}
