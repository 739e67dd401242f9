package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/provider"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const providerName = "coingecko"

// CoinGeckoConfig holds CoinGecko API settings
type CoinGeckoConfig struct {
	BaseURL string
	// APIKey is sent as x-cg-pro-api-key when set
	APIKey  string
	Timeout time.Duration
}

// CoinGeckoClient implements payorder.PricingProvider against /simple/price
type CoinGeckoClient struct {
	baseURL string
	client  *provider.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewCoinGeckoClient creates a CoinGecko price client. httpClient may be nil.
func NewCoinGeckoClient(cfg CoinGeckoConfig, httpClient *http.Client, logger *zap.Logger) *CoinGeckoClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := provider.NewClient(providerName, httpClient, cfg.Timeout)
	c.SetHeader("x-cg-pro-api-key", cfg.APIKey)

	return &CoinGeckoClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  c,
		logger:  logger.Named("coingecko"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// simplePriceEntry is one id's entry in the /simple/price response
type simplePriceEntry struct {
	USD           json.Number `json:"usd"`
	LastUpdatedAt int64       `json:"last_updated_at"`
}

// GetPrice returns the USD unit price of a currency
func (c *CoinGeckoClient) GetPrice(ctx context.Context, currency payorder.Currency) (payorder.Price, error) {
	if currency.PricingID == "" {
		return payorder.Price{}, fmt.Errorf("%w: %s has no pricing id", payorder.ErrUnsupportedCurrency, currency.ID)
	}

	q := url.Values{}
	q.Set("ids", currency.PricingID)
	q.Set("vs_currencies", "usd")
	q.Set("include_last_updated_at", "true")
	q.Set("precision", "full")

	var resp map[string]simplePriceEntry
	if err := c.client.Get(ctx, c.baseURL+"/simple/price?"+q.Encode(), &resp); err != nil {
		c.logger.Warn("Price lookup failed",
			zap.String("currency", currency.ID),
			zap.String("pricing_id", currency.PricingID),
			zap.Error(err),
		)
		return payorder.Price{}, err
	}

	entry, ok := resp[currency.PricingID]
	if !ok || entry.USD == "" {
		return payorder.Price{}, fmt.Errorf("%w: %s: no USD price for %s", payorder.ErrUnsupportedCurrency, providerName, currency.PricingID)
	}

	price, err := decimal.NewFromString(entry.USD.String())
	if err != nil {
		return payorder.Price{}, fmt.Errorf("%s: invalid price %q: %w", providerName, entry.USD, err)
	}
	if !price.IsPositive() {
		return payorder.Price{}, fmt.Errorf("%w: %s: non-positive price for %s", payorder.ErrProviderUnavailable, providerName, currency.PricingID)
	}

	asOf := c.now()
	if entry.LastUpdatedAt > 0 {
		asOf = time.Unix(entry.LastUpdatedAt, 0).UTC()
	}

	return payorder.Price{UnitPriceUSD: price, AsOf: asOf}, nil
}

var _ payorder.PricingProvider = (*CoinGeckoClient)(nil)
