package payorder

import (
	"fmt"
	"strings"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
)

// ListCurrenciesFilter narrows the supported currency list
type ListCurrenciesFilter struct {
	Chain  string `form:"chain" binding:"omitempty,max=64"`
	Family string `form:"family" binding:"omitempty,max=16"`
}

// CurrencyResponse is a supported currency as shown to API clients
type CurrencyResponse struct {
	ID       string `json:"id"`
	Ticker   string `json:"ticker"`
	Chain    string `json:"chain"`
	Family   string `json:"family"`
	Token    string `json:"token"`
	Decimals int32  `json:"decimals"`
}

// CurrencyService exposes the currency catalog
type CurrencyService struct {
	catalog *payorder.CurrencyCatalog
}

// NewCurrencyService creates a new CurrencyService
func NewCurrencyService(catalog *payorder.CurrencyCatalog) *CurrencyService {
	return &CurrencyService{catalog: catalog}
}

// List returns the supported currencies matching the filter. Family is
// matched case-insensitively.
func (s *CurrencyService) List(filter ListCurrenciesFilter) ([]CurrencyResponse, error) {
	family := payorder.ChainFamily(strings.ToUpper(strings.TrimSpace(filter.Family)))
	if family != "" && !family.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHAIN_FAMILY", fmt.Sprintf("Unknown chain family %q", filter.Family))
	}

	currencies := s.catalog.Filter(strings.TrimSpace(filter.Chain), family)
	out := make([]CurrencyResponse, len(currencies))
	for i, c := range currencies {
		out[i] = CurrencyResponse{
			ID:       c.ID,
			Ticker:   c.Ticker,
			Chain:    c.Chain,
			Family:   string(c.Family),
			Token:    c.Token,
			Decimals: c.Decimals,
		}
	}
	return out, nil
}
