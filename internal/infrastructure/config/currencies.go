package config

import (
	"strings"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/shopspring/decimal"
)

// DefaultCurrencies is the catalog used when the config file lists none
func DefaultCurrencies() []CurrencyConfig {
	return []CurrencyConfig{
		{
			ID: "eth", Ticker: "ETH", Chain: "ethereum", Family: "EVM", Token: "native", Decimals: 18,
			PricingID: "ethereum", RoutingTicker: "eth", RoutingNetwork: "eth",
		},
		{
			ID: "usdc-eth", Ticker: "USDC", Chain: "ethereum", Family: "EVM",
			Token: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6,
			PricingID: "usd-coin", RoutingTicker: "usdc", RoutingNetwork: "eth",
		},
		{
			ID: "sol", Ticker: "SOL", Chain: "solana", Family: "SOLANA", Token: "native", Decimals: 9,
			PricingID: "solana", RoutingTicker: "sol", RoutingNetwork: "sol",
		},
		{
			ID: "usdc-sol", Ticker: "USDC", Chain: "solana", Family: "SOLANA",
			Token: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6,
			PricingID: "usd-coin", RoutingTicker: "usdc", RoutingNetwork: "sol",
		},
		{
			ID: "sui", Ticker: "SUI", Chain: "sui", Family: "SUI", Token: "native", Decimals: 9,
			PricingID: "sui", RoutingTicker: "sui", RoutingNetwork: "sui",
		},
	}
}

// Currency converts the entry to its domain definition
func (c CurrencyConfig) Currency() payorder.Currency {
	cur := payorder.Currency{
		ID:             c.ID,
		Ticker:         c.Ticker,
		Chain:          c.Chain,
		Family:         payorder.ChainFamily(strings.ToUpper(c.Family)),
		Token:          c.Token,
		Decimals:       c.Decimals,
		PricingID:      c.PricingID,
		RoutingTicker:  c.RoutingTicker,
		RoutingNetwork: c.RoutingNetwork,
	}
	if c.FeeRate > 0 {
		cur.FeeRate = decimal.NewFromFloat(c.FeeRate)
	}
	return cur
}

// CurrencyCatalog builds the supported currency set
func (c *Config) CurrencyCatalog() (*payorder.CurrencyCatalog, error) {
	currencies := make([]payorder.Currency, 0, len(c.Currencies))
	for _, cc := range c.Currencies {
		currencies = append(currencies, cc.Currency())
	}
	return payorder.NewCurrencyCatalog(currencies)
}
