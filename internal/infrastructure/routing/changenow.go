package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/infrastructure/provider"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const providerName = "changenow"

// ChangeNowConfig holds ChangeNow v2 API settings
type ChangeNowConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ChangeNowClient implements payorder.RoutingProvider on the ChangeNow v2 API
type ChangeNowClient struct {
	baseURL string
	client  *provider.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewChangeNowClient creates a ChangeNow client. httpClient may be nil.
func NewChangeNowClient(cfg ChangeNowConfig, httpClient *http.Client, logger *zap.Logger) *ChangeNowClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := provider.NewClient(providerName, httpClient, cfg.Timeout)
	c.SetHeader("x-changenow-api-key", cfg.APIKey)

	return &ChangeNowClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  c,
		logger:  logger.Named("changenow"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the provider name stored on routes
func (c *ChangeNowClient) Name() string {
	return providerName
}

// CreateRoute opens a standard-flow exchange from the source to the destination currency.
// A rejected exchange is reported as a *payorder.RouteProvisioningError with the
// provider's accepted amount range when it can be fetched.
func (c *ChangeNowClient) CreateRoute(ctx context.Context, req payorder.RouteRequest) (payorder.RouteDetails, error) {
	body := createExchangeRequest{
		FromCurrency:  req.SourceCurrency.RoutingTicker,
		ToCurrency:    req.DestinationCurrency.RoutingTicker,
		FromNetwork:   req.SourceCurrency.RoutingNetwork,
		ToNetwork:     req.DestinationCurrency.RoutingNetwork,
		FromAmount:    req.SourceAmount.String(),
		Address:       req.DestinationAddress,
		RefundAddress: req.RefundAddress,
		Flow:          "standard",
		Type:          "direct",
		Payload:       req.OrderID.String(),
	}

	var resp exchangeResponse
	err := c.client.PostJSON(ctx, c.baseURL+"/exchange", body, &resp)
	if err != nil {
		var se *provider.StatusError
		if errors.As(err, &se) {
			return payorder.RouteDetails{}, c.rejection(ctx, req, se)
		}
		return payorder.RouteDetails{}, err
	}
	if resp.ID == "" || resp.PayinAddress == "" {
		return payorder.RouteDetails{}, payorder.NewRouteProvisioningError("exchange response carried no deposit address", nil, nil)
	}

	expected := req.SourceAmount
	if amt, err := decimal.NewFromString(resp.FromAmount.String()); err == nil && amt.IsPositive() {
		expected = amt
	}

	c.logger.Info("Exchange created",
		zap.String("order_id", req.OrderID.String()),
		zap.String("exchange_id", resp.ID),
		zap.String("from", req.SourceCurrency.ID),
		zap.String("to", req.DestinationCurrency.ID),
	)

	return payorder.RouteDetails{
		RouteID:             resp.ID,
		Provider:            providerName,
		DepositAddress:      resp.PayinAddress,
		DepositExtraID:      resp.PayinExtraID,
		SourceCurrency:      req.SourceCurrency.ID,
		DestinationCurrency: req.DestinationCurrency.ID,
		DestinationAddress:  req.DestinationAddress,
		ExpectedAmount:      expected,
		ProvisionedAt:       c.now(),
	}, nil
}

// rejection turns a 4xx from POST /exchange into a provisioning error,
// attaching the accepted range on a best-effort basis
func (c *ChangeNowClient) rejection(ctx context.Context, req payorder.RouteRequest, se *provider.StatusError) error {
	reason := fmt.Sprintf("status %d", se.StatusCode)
	var body errorResponse
	if json.Unmarshal(se.Body, &body) == nil {
		switch {
		case body.Message != "":
			reason = body.Message
		case body.Error != "":
			reason = body.Error
		}
	}

	minAmount, maxAmount, err := c.exchangeRange(ctx, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		c.logger.Debug("Exchange range lookup failed", zap.Error(err))
	}
	return payorder.NewRouteProvisioningError(reason, minAmount, maxAmount)
}

func (c *ChangeNowClient) exchangeRange(ctx context.Context, from, to payorder.Currency) (*decimal.Decimal, *decimal.Decimal, error) {
	q := url.Values{}
	q.Set("fromCurrency", from.RoutingTicker)
	q.Set("toCurrency", to.RoutingTicker)
	q.Set("fromNetwork", from.RoutingNetwork)
	q.Set("toNetwork", to.RoutingNetwork)
	q.Set("flow", "standard")

	var resp rangeResponse
	if err := c.client.Get(ctx, c.baseURL+"/exchange/range?"+q.Encode(), &resp); err != nil {
		return nil, nil, err
	}
	return optionalDecimal(resp.MinAmount), optionalDecimal(resp.MaxAmount), nil
}

// GetRoute reads the exchange status and maps it onto RouteStatus
func (c *ChangeNowClient) GetRoute(ctx context.Context, routeID string) (payorder.RouteStatusReport, error) {
	q := url.Values{}
	q.Set("id", routeID)

	var resp exchangeStatusResponse
	if err := c.client.Get(ctx, c.baseURL+"/exchange/by-id?"+q.Encode(), &resp); err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return payorder.RouteStatusReport{}, fmt.Errorf("%w: exchange %s", shared.ErrNotFound, routeID)
		}
		return payorder.RouteStatusReport{}, err
	}

	report := payorder.RouteStatusReport{
		RouteID: routeID,
		Status:  MapExchangeStatus(resp.Status),
		Detail:  resp.Status,
	}
	if amt := optionalDecimal(resp.AmountTo); amt != nil {
		report.AmountOut = *amt
	}
	switch report.Status {
	case payorder.RouteStatusSettled:
		report.PayoutTxHash = resp.PayoutHash
	case payorder.RouteStatusRefunded:
		report.PayoutTxHash = resp.RefundHash
	}
	return report, nil
}

// MapExchangeStatus maps a ChangeNow exchange status onto RouteStatus
func MapExchangeStatus(status string) payorder.RouteStatus {
	switch strings.ToLower(status) {
	case "finished":
		return payorder.RouteStatusSettled
	case "refunded":
		return payorder.RouteStatusRefunded
	case "failed":
		return payorder.RouteStatusFailed
	}
	// new, waiting, confirming, exchanging, sending, verifying
	return payorder.RouteStatusInProgress
}

func optionalDecimal(n json.Number) *decimal.Decimal {
	if n == "" {
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	return &d
}

var _ payorder.RoutingProvider = (*ChangeNowClient)(nil)
