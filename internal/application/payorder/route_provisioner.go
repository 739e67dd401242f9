package payorder

import (
	"context"
	"fmt"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"go.uber.org/zap"
)

// ProvisionRequest describes the route a payer asked for
type ProvisionRequest struct {
	SourceCurrency string
	RefundAddress  string
	// DestinationAddress is used when the order itself has none (SALE orders)
	DestinationAddress string
}

// RouteProvisionerConfig holds the dependencies of a RouteProvisioner
type RouteProvisionerConfig struct {
	Routing    payorder.RoutingProvider
	Currencies payorder.CurrencyResolver
	Claims     shared.ClaimStore
	Retrier    *Retrier
	ClaimTTL   time.Duration
	Logger     *zap.Logger
	Clock      func() time.Time
}

// RouteProvisioner obtains a deposit address from the routing provider.
// At most one provider call per order is in flight at any time.
type RouteProvisioner struct {
	routing    payorder.RoutingProvider
	currencies payorder.CurrencyResolver
	claims     shared.ClaimStore
	retrier    *Retrier
	claimTTL   time.Duration
	logger     *zap.Logger
	clock      func() time.Time
}

// NewRouteProvisioner creates a new RouteProvisioner
func NewRouteProvisioner(cfg RouteProvisionerConfig) *RouteProvisioner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryConfig(), logger)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	ttl := cfg.ClaimTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RouteProvisioner{
		routing:    cfg.Routing,
		currencies: cfg.Currencies,
		claims:     cfg.Claims,
		retrier:    retrier,
		claimTTL:   ttl,
		logger:     logger,
		clock:      clock,
	}
}

// ProvisionRoute returns route details for the chosen source currency.
// An order that already has a route for that currency gets it back without a
// provider call.
func (p *RouteProvisioner) ProvisionRoute(ctx context.Context, order *payorder.PayOrder, req ProvisionRequest) (payorder.RouteDetails, error) {
	if order.Route != nil {
		if order.Route.SourceCurrency == req.SourceCurrency {
			return *order.Route, nil
		}
		return payorder.RouteDetails{}, shared.NewDomainError("ROUTE_ALREADY_PROVISIONED", "A route has already been provisioned for this order")
	}
	if order.Status != payorder.StatusPending {
		return payorder.RouteDetails{}, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot provision a route for order in %s status", order.Status))
	}

	now := p.clock()
	if !now.Before(order.ExpiresAt) {
		return payorder.RouteDetails{}, payorder.ErrOrderExpired
	}
	if order.Quote == nil || order.Quote.IsExpired(now) {
		return payorder.RouteDetails{}, payorder.ErrStaleQuote
	}
	option, ok := order.Quote.Find(req.SourceCurrency)
	if !ok {
		return payorder.RouteDetails{}, payorder.ErrStaleQuote
	}

	src, err := p.currencies.Lookup(option.Currency)
	if err != nil {
		return payorder.RouteDetails{}, err
	}
	dest, err := p.currencies.Lookup(option.DestinationCurrency)
	if err != nil {
		return payorder.RouteDetails{}, err
	}
	destinationAddress := order.DestinationAddress
	if destinationAddress == "" {
		destinationAddress = req.DestinationAddress
	}
	if destinationAddress == "" {
		return payorder.RouteDetails{}, shared.NewDomainError("INVALID_DESTINATION", fmt.Sprintf("No settlement address configured for %s", dest.ID))
	}

	key := routeClaimKey(order)
	claimed, err := p.claims.Claim(ctx, key, p.claimTTL)
	if err != nil {
		return payorder.RouteDetails{}, fmt.Errorf("%w: %v", payorder.NewProviderUnavailableError("claim store"), err)
	}
	if !claimed {
		p.logger.Info("Route provisioning already in flight",
			zap.String("order_id", order.ID.String()),
		)
		return payorder.RouteDetails{}, payorder.ErrConcurrentTransitionConflict
	}

	routeReq := payorder.RouteRequest{
		OrderID:             order.ID,
		SourceCurrency:      src,
		DestinationCurrency: dest,
		DestinationAddress:  destinationAddress,
		RefundAddress:       req.RefundAddress,
		SourceAmount:        option.ImpliedAmount,
	}

	var route payorder.RouteDetails
	err = p.retrier.Do(ctx, "routing.create_route", func(ctx context.Context) error {
		var err error
		route, err = p.routing.CreateRoute(ctx, routeReq)
		return err
	})
	if err != nil {
		// Let the payer try again with another currency or a fresh quote
		if releaseErr := p.claims.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			p.logger.Warn("Failed to release route claim", zap.String("key", key), zap.Error(releaseErr))
		}
		p.logger.Warn("Route provisioning failed",
			zap.String("order_id", order.ID.String()),
			zap.String("source_currency", src.ID),
			zap.String("destination_currency", dest.ID),
			zap.Error(err),
		)
		return payorder.RouteDetails{}, err
	}

	if route.Provider == "" {
		route.Provider = p.routing.Name()
	}
	route.SourceCurrency = src.ID
	route.DestinationCurrency = dest.ID
	if route.DestinationAddress == "" {
		route.DestinationAddress = destinationAddress
	}
	if route.ExpectedAmount.IsZero() {
		route.ExpectedAmount = option.ImpliedAmount
	}
	route.ProvisionedAt = now

	p.logger.Info("Route provisioned",
		zap.String("order_id", order.ID.String()),
		zap.String("route_id", route.RouteID),
		zap.String("provider", route.Provider),
		zap.String("source_currency", src.ID),
		zap.String("expected_amount", route.ExpectedAmount.String()),
	)

	return route, nil
}

func routeClaimKey(order *payorder.PayOrder) string {
	return "route:" + order.ID.String()
}
