package payorder

import (
	"context"
	"sort"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteEngineConfig holds the dependencies of a QuoteEngine
type QuoteEngineConfig struct {
	Pricing    payorder.PricingProvider
	Currencies payorder.CurrencyResolver
	Retrier    *Retrier
	FeeRate    decimal.Decimal
	QuoteTTL   time.Duration
	Logger     *zap.Logger
	Clock      func() time.Time
}

// QuoteEngine prices candidate source currencies against an order's destination.
// It never mutates the order.
type QuoteEngine struct {
	pricing    payorder.PricingProvider
	currencies payorder.CurrencyResolver
	retrier    *Retrier
	feeRate    decimal.Decimal
	quoteTTL   time.Duration
	logger     *zap.Logger
	clock      func() time.Time
}

// NewQuoteEngine creates a new QuoteEngine
func NewQuoteEngine(cfg QuoteEngineConfig) *QuoteEngine {
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
	ttl := cfg.QuoteTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QuoteEngine{
		pricing:    cfg.Pricing,
		currencies: cfg.Currencies,
		retrier:    retrier,
		feeRate:    cfg.FeeRate,
		quoteTTL:   ttl,
		logger:     logger,
		clock:      clock,
	}
}

// priceLookup memoizes prices for the duration of one quote
type priceLookup struct {
	engine *QuoteEngine
	prices map[string]decimal.Decimal
	errs   map[string]error
}

func (p *priceLookup) get(ctx context.Context, cur payorder.Currency) (decimal.Decimal, error) {
	if price, ok := p.prices[cur.ID]; ok {
		return price, nil
	}
	if err, ok := p.errs[cur.ID]; ok {
		return decimal.Zero, err
	}

	var price payorder.Price
	err := p.engine.retrier.Do(ctx, "pricing.get_price", func(ctx context.Context) error {
		var err error
		price, err = p.engine.pricing.GetPrice(ctx, cur)
		return err
	})
	if err != nil {
		p.errs[cur.ID] = err
		return decimal.Zero, err
	}
	p.prices[cur.ID] = price.UnitPriceUSD
	return price.UnitPriceUSD, nil
}

// GetQuoteOptions returns one option per requested source currency that can
// pay the order, cheapest first. settlement lists the organization's
// settlement currencies and is used when the order has no destination yet.
func (e *QuoteEngine) GetQuoteOptions(ctx context.Context, order *payorder.PayOrder, candidates []string, settlement []string) ([]payorder.QuoteOption, error) {
	if order.Status != payorder.StatusPending && order.Status != payorder.StatusAwaitingPayment {
		return nil, shared.NewDomainError("INVALID_STATE", "Quotes are only available before payment")
	}
	candidates = uniqueIDs(candidates)
	if len(candidates) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one candidate currency is required")
	}

	destinationIDs := settlement
	if order.DestinationCurrency != "" {
		destinationIDs = []string{order.DestinationCurrency}
	}

	prices := &priceLookup{engine: e, prices: map[string]decimal.Decimal{}, errs: map[string]error{}}
	destinations := e.priceDestinations(ctx, prices, order, uniqueIDs(destinationIDs))
	if len(destinations) == 0 {
		if len(prices.errs) > 0 {
			return nil, payorder.ErrQuoteUnavailable
		}
		return nil, payorder.ErrNoViableRoute
	}

	now := e.clock()
	expiresAt := now.Add(e.quoteTTL)
	options := make([]payorder.QuoteOption, 0, len(candidates))
	attempted, failed := 0, 0

	for _, id := range candidates {
		src, err := e.currencies.Lookup(id)
		if err != nil {
			e.logger.Debug("Skipping unsupported candidate currency", zap.String("currency", id))
			continue
		}
		attempted++
		srcPrice, err := prices.get(ctx, src)
		if err != nil {
			failed++
			e.logger.Warn("Pricing failed for candidate currency",
				zap.String("currency", id),
				zap.Error(err),
			)
			continue
		}
		if !srcPrice.IsPositive() {
			continue
		}

		var best *payorder.QuoteOption
		for _, dest := range destinations {
			opt := e.priceOption(src, srcPrice, dest, expiresAt)
			if best == nil || opt.ValueUSD.LessThan(best.ValueUSD) {
				best = &opt
			}
		}
		options = append(options, *best)
	}

	if len(options) == 0 {
		if attempted > 0 && failed == attempted {
			return nil, payorder.ErrQuoteUnavailable
		}
		return nil, payorder.ErrNoViableRoute
	}

	sort.SliceStable(options, func(i, j int) bool {
		if !options[i].ValueUSD.Equal(options[j].ValueUSD) {
			return options[i].ValueUSD.LessThan(options[j].ValueUSD)
		}
		return options[i].Currency < options[j].Currency
	})

	return options, nil
}

// pricedDestination is a destination currency with the USD value and amount
// the order must deliver in it
type pricedDestination struct {
	currency payorder.Currency
	valueUSD decimal.Decimal
	amount   decimal.Decimal
}

func (e *QuoteEngine) priceDestinations(ctx context.Context, prices *priceLookup, order *payorder.PayOrder, ids []string) []pricedDestination {
	out := make([]pricedDestination, 0, len(ids))
	for _, id := range ids {
		cur, err := e.currencies.Lookup(id)
		if err != nil {
			continue
		}
		price, err := prices.get(ctx, cur)
		if err != nil || !price.IsPositive() {
			continue
		}

		d := pricedDestination{currency: cur}
		if order.DestinationValueUSD != nil {
			d.valueUSD = *order.DestinationValueUSD
			d.amount = d.valueUSD.Div(price).RoundFloor(cur.Decimals)
		} else {
			d.amount = order.AmountExpected
			d.valueUSD = order.AmountExpected.Mul(price)
		}
		out = append(out, d)
	}

	// Sorted so ties between destinations resolve the same way every time
	sort.SliceStable(out, func(i, j int) bool { return out[i].currency.ID < out[j].currency.ID })
	return out
}

func (e *QuoteEngine) priceOption(src payorder.Currency, srcPrice decimal.Decimal, dest pricedDestination, expiresAt time.Time) payorder.QuoteOption {
	fee := e.feeRate
	if src.FeeRate.IsPositive() {
		fee = src.FeeRate
	}
	implied := dest.valueUSD.Div(srcPrice).Mul(decimal.NewFromInt(1).Add(fee)).RoundCeil(src.Decimals)

	return payorder.QuoteOption{
		Currency:            src.ID,
		DestinationCurrency: dest.currency.ID,
		ImpliedAmount:       implied,
		DestinationAmount:   dest.amount,
		ValueUSD:            implied.Mul(srcPrice).Round(2),
		ExpiresAt:           expiresAt,
	}
}

// NewQuote freezes options into a snapshot
func (e *QuoteEngine) NewQuote(options []payorder.QuoteOption) payorder.QuoteSnapshot {
	return payorder.NewQuoteSnapshot(options, e.clock())
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
