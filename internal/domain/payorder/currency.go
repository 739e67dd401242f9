package payorder

import (
	"fmt"
	"strings"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ChainFamily groups chains that share a transaction lookup protocol
type ChainFamily string

const (
	ChainFamilyEVM    ChainFamily = "EVM"
	ChainFamilySolana ChainFamily = "SOLANA"
	ChainFamilySui    ChainFamily = "SUI"
)

// IsValid checks if the family is one of the supported chain families
func (f ChainFamily) IsValid() bool {
	switch f {
	case ChainFamilyEVM, ChainFamilySolana, ChainFamilySui:
		return true
	}
	return false
}

// NativeToken is the token identity of a chain's native asset
const NativeToken = "native"

// Currency is a transferable asset on one chain
type Currency struct {
	ID             string
	Ticker         string
	Chain          string
	Family         ChainFamily
	Token          string
	Decimals       int32
	PricingID      string
	RoutingTicker  string
	RoutingNetwork string
	// FeeRate overrides the default routing fee estimate when positive
	FeeRate decimal.Decimal
}

// IsNative reports whether the currency is the chain's native asset
func (c Currency) IsNative() bool {
	return c.Token == "" || c.Token == NativeToken
}

// SameToken compares a token identity observed on chain with this currency.
// EVM contract addresses are case-insensitive hex; other families compare exactly.
func (c Currency) SameToken(observed string) bool {
	if c.IsNative() {
		return observed == "" || observed == NativeToken
	}
	if c.Family == ChainFamilyEVM {
		return strings.EqualFold(c.Token, observed)
	}
	return c.Token == observed
}

// FromBaseUnits converts an integer amount of the smallest unit to whole units
func (c Currency) FromBaseUnits(units decimal.Decimal) decimal.Decimal {
	return units.Shift(-c.Decimals)
}

// ToBaseUnits converts whole units to the smallest unit, rounding up
func (c Currency) ToBaseUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(c.Decimals).RoundCeil(0)
}

// Validate checks the currency definition
func (c Currency) Validate() error {
	if c.ID == "" {
		return shared.NewDomainError("INVALID_CURRENCY", "Currency ID cannot be empty")
	}
	if c.Chain == "" {
		return shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Currency %s has no chain", c.ID))
	}
	if !c.Family.IsValid() {
		return shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Currency %s has unknown chain family %q", c.ID, c.Family))
	}
	if c.Decimals < 0 || c.Decimals > 36 {
		return shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Currency %s has invalid decimals %d", c.ID, c.Decimals))
	}
	return nil
}

// CurrencyResolver looks up supported currencies by ID
type CurrencyResolver interface {
	Lookup(id string) (Currency, error)
}

// CurrencyCatalog is a fixed set of supported currencies
type CurrencyCatalog struct {
	byID  map[string]Currency
	order []string
}

// NewCurrencyCatalog creates a catalog, rejecting duplicate or invalid entries
func NewCurrencyCatalog(currencies []Currency) (*CurrencyCatalog, error) {
	c := &CurrencyCatalog{byID: make(map[string]Currency, len(currencies))}
	for _, cur := range currencies {
		if err := cur.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[cur.ID]; exists {
			return nil, shared.NewDomainError("DUPLICATE_CURRENCY", fmt.Sprintf("Currency %s is defined twice", cur.ID))
		}
		c.byID[cur.ID] = cur
		c.order = append(c.order, cur.ID)
	}
	return c, nil
}

// Lookup returns the currency with the given ID
func (c *CurrencyCatalog) Lookup(id string) (Currency, error) {
	cur, ok := c.byID[id]
	if !ok {
		return Currency{}, ErrUnsupportedCurrency
	}
	return cur, nil
}

// All returns the currencies in definition order
func (c *CurrencyCatalog) All() []Currency {
	out := make([]Currency, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Filter returns the currencies on chain and of family, in definition order.
// Empty arguments match everything.
func (c *CurrencyCatalog) Filter(chain string, family ChainFamily) []Currency {
	out := make([]Currency, 0, len(c.order))
	for _, id := range c.order {
		cur := c.byID[id]
		if chain != "" && cur.Chain != chain {
			continue
		}
		if family != "" && cur.Family != family {
			continue
		}
		out = append(out, cur)
	}
	return out
}
