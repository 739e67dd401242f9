package payorder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxRouteAttachAttempts bounds how often a provisioned route is reattached
// after losing the version check to a concurrent write.
const maxRouteAttachAttempts = 3

// PayOrderServiceConfig holds the dependencies of a PayOrderService
type PayOrderServiceConfig struct {
	Repo           payorder.Repository
	OrgRepo        payorder.OrganizationRepository
	Currencies     payorder.CurrencyResolver
	Quotes         *QuoteEngine
	Provisioner    *RouteProvisioner
	Verifier       *TransactionVerifier
	Routing        payorder.RoutingProvider
	Retrier        *Retrier
	EventPublisher shared.EventPublisher
	Policy         payorder.VerificationPolicy
	OrderTTL       time.Duration
	PaymentWindow  time.Duration
	Logger         *zap.Logger
	Clock          func() time.Time
}

// PayOrderService orchestrates the pay order lifecycle. Provider calls happen
// before the version-checked write, never inside it.
type PayOrderService struct {
	repo          payorder.Repository
	orgRepo       payorder.OrganizationRepository
	currencies    payorder.CurrencyResolver
	quotes        *QuoteEngine
	provisioner   *RouteProvisioner
	verifier      *TransactionVerifier
	routing       payorder.RoutingProvider
	retrier       *Retrier
	publisher     shared.EventPublisher
	policy        payorder.VerificationPolicy
	orderTTL      time.Duration
	paymentWindow time.Duration
	logger        *zap.Logger
	clock         func() time.Time
}

// NewPayOrderService creates a new PayOrderService
func NewPayOrderService(cfg PayOrderServiceConfig) *PayOrderService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryConfig(), logger)
	}
	policy := cfg.Policy
	if policy.MismatchRetryBudget == 0 {
		policy = payorder.DefaultVerificationPolicy()
	}
	orderTTL := cfg.OrderTTL
	if orderTTL <= 0 {
		orderTTL = 15 * time.Minute
	}
	window := cfg.PaymentWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &PayOrderService{
		repo:          cfg.Repo,
		orgRepo:       cfg.OrgRepo,
		currencies:    cfg.Currencies,
		quotes:        cfg.Quotes,
		provisioner:   cfg.Provisioner,
		verifier:      cfg.Verifier,
		routing:       cfg.Routing,
		retrier:       retrier,
		publisher:     cfg.EventPublisher,
		policy:        policy,
		orderTTL:      orderTTL,
		paymentWindow: window,
		logger:        logger,
		clock:         clock,
	}
}

// Create creates a new pay order in PENDING status
func (s *PayOrderService) Create(ctx context.Context, organizationID uuid.UUID, req CreatePayOrderRequest) (*PayOrderResponse, error) {
	mode := payorder.Mode(req.Mode)
	destinationAddress := strings.TrimSpace(req.DestinationAddress)

	if req.DestinationCurrency != "" {
		if _, err := s.currencies.Lookup(req.DestinationCurrency); err != nil {
			return nil, err
		}
	}

	if mode == payorder.ModeSale {
		org, err := s.orgRepo.FindByID(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		if req.DestinationCurrency == "" && len(org.SettlementCurrencies) == 0 {
			return nil, shared.NewDomainError("NO_SETTLEMENT_CURRENCIES", "Organization has no settlement currencies configured")
		}
		if req.DestinationCurrency != "" && destinationAddress == "" {
			destinationAddress, _ = org.SettlementAddress(req.DestinationCurrency)
		}
	}

	params := payorder.NewPayOrderParams{
		OrganizationID:      organizationID,
		Mode:                mode,
		DestinationCurrency: req.DestinationCurrency,
		DestinationAddress:  destinationAddress,
		DestinationValueUSD: req.DestinationValueUSD,
		RefundAddress:       req.RefundAddress,
		Metadata:            req.Metadata,
		TTL:                 s.orderTTL,
	}
	if req.AmountExpected != nil {
		params.AmountExpected = *req.AmountExpected
	}

	order, err := payorder.NewPayOrder(params, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, order)

	s.logger.Info("Pay order created",
		zap.String("order_id", order.ID.String()),
		zap.String("organization_id", organizationID.String()),
		zap.String("mode", string(order.Mode)),
	)

	resp := ToPayOrderResponse(order)
	return &resp, nil
}

// Get retrieves a pay order owned by the organization
func (s *PayOrderService) Get(ctx context.Context, organizationID, orderID uuid.UUID) (*PayOrderResponse, error) {
	order, err := s.repo.FindByIDForOrganization(ctx, organizationID, orderID)
	if err != nil {
		return nil, err
	}
	resp := ToPayOrderResponse(order)
	return &resp, nil
}

// List retrieves a page of the organization's pay orders
func (s *PayOrderService) List(ctx context.Context, organizationID uuid.UUID, filter ListPayOrdersFilter) (shared.Paginated[PayOrderListResponse], error) {
	f := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  "created_at",
		OrderDir: "desc",
		Filters:  map[string]any{},
	}
	if filter.Status != "" {
		status := payorder.Status(filter.Status)
		if !status.IsValid() {
			return shared.Paginated[PayOrderListResponse]{}, shared.NewDomainError("INVALID_STATUS", "Unknown pay order status")
		}
		f.Filters["status"] = status
	}
	f = f.Normalize()

	orders, err := s.repo.FindAllForOrganization(ctx, organizationID, f)
	if err != nil {
		return shared.Paginated[PayOrderListResponse]{}, err
	}
	total, err := s.repo.CountForOrganization(ctx, organizationID, f)
	if err != nil {
		return shared.Paginated[PayOrderListResponse]{}, err
	}

	items := make([]PayOrderListResponse, len(orders))
	for i := range orders {
		items[i] = ToPayOrderListResponse(&orders[i])
	}
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// Quote prices the candidate currencies. For a PENDING order the options are
// stored as the quote snapshot a route will be provisioned from.
func (s *PayOrderService) Quote(ctx context.Context, organizationID, orderID uuid.UUID, req QuoteRequest) (*QuoteResponse, error) {
	order, err := s.repo.FindByIDForOrganization(ctx, organizationID, orderID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if order.IsOverdue(now) {
		return nil, s.closeOverdue(ctx, order, now)
	}

	org, err := s.orgRepo.FindByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	options, err := s.quotes.GetQuoteOptions(ctx, order, req.CandidateCurrencies, org.SettlementCurrencyIDs())
	if err != nil {
		return nil, err
	}

	if order.Status != payorder.StatusPending {
		return &QuoteResponse{Options: options, ExpiresAt: options[0].ExpiresAt}, nil
	}

	snapshot := s.quotes.NewQuote(options)
	if err := order.RecordQuote(snapshot, now); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, order); err != nil {
		return nil, err
	}

	return &QuoteResponse{
		QuoteID:   &snapshot.QuoteID,
		Options:   snapshot.Options,
		ExpiresAt: snapshot.ExpiresAt,
	}, nil
}

// PaymentDetails provisions a route for the chosen source currency and moves
// the order to AWAITING_PAYMENT. Asking again for the same currency returns
// the existing details.
func (s *PayOrderService) PaymentDetails(ctx context.Context, organizationID, orderID uuid.UUID, req PaymentDetailsRequest) (*PayOrderResponse, error) {
	order, err := s.repo.FindByIDForOrganization(ctx, organizationID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Route != nil && order.Route.SourceCurrency == req.SourceCurrency {
		resp := ToPayOrderResponse(order)
		return &resp, nil
	}

	now := s.clock()
	if order.IsOverdue(now) {
		return nil, s.closeOverdue(ctx, order, now)
	}

	provisionReq := ProvisionRequest{
		SourceCurrency: req.SourceCurrency,
		RefundAddress:  strings.TrimSpace(req.RefundAddress),
	}
	if provisionReq.RefundAddress == "" {
		provisionReq.RefundAddress = order.RefundAddress
	}
	if order.DestinationAddress == "" && order.Quote != nil {
		if opt, ok := order.Quote.Find(req.SourceCurrency); ok {
			org, err := s.orgRepo.FindByID(ctx, organizationID)
			if err != nil {
				return nil, err
			}
			provisionReq.DestinationAddress, _ = org.SettlementAddress(opt.DestinationCurrency)
		}
	}

	route, err := s.provisioner.ProvisionRoute(ctx, order, provisionReq)
	if err != nil {
		return nil, err
	}
	if err := order.AttachRoute(route, provisionReq.RefundAddress, s.paymentWindow, s.clock()); err != nil {
		return nil, err
	}

	// The route already exists upstream, so a lost write is retried against
	// the reloaded order instead of being thrown away.
	for attempt := 1; ; attempt++ {
		err := s.commit(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, payorder.ErrConcurrentTransitionConflict) {
			return nil, err
		}
		reloaded, rerr := s.repo.FindByIDForOrganization(ctx, organizationID, orderID)
		if rerr != nil {
			return nil, err
		}
		if reloaded.Route != nil {
			if reloaded.Route.RouteID != route.RouteID {
				return nil, err
			}
			order = reloaded
			break
		}
		if reloaded.Status != payorder.StatusPending || attempt >= maxRouteAttachAttempts {
			return nil, err
		}
		if aerr := reloaded.AttachRoute(route, provisionReq.RefundAddress, s.paymentWindow, s.clock()); aerr != nil {
			return nil, aerr
		}
		s.logger.Debug("Reattaching route after concurrent update",
			zap.String("order_id", orderID.String()),
			zap.String("route_id", route.RouteID),
			zap.Int("attempt", attempt),
		)
		order = reloaded
	}

	resp := ToPayOrderResponse(order)
	return &resp, nil
}

// Process submits or polls a payment. Evidence is gathered first and then
// applied to the order in a single version-checked write. Replaying the same
// evidence returns the order unchanged.
func (s *PayOrderService) Process(ctx context.Context, organizationID, orderID uuid.UUID, txHash string) (*ProcessResponse, error) {
	order, err := s.repo.FindByIDForOrganization(ctx, organizationID, orderID)
	if err != nil {
		return nil, err
	}

	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		txHash = order.TxHash
	}

	switch order.Status {
	case payorder.StatusExpired:
		return nil, payorder.ErrOrderExpired
	case payorder.StatusCompleted, payorder.StatusRefunded:
		if txHash != "" && txHash == order.TxHash {
			return s.processResponse(order, nil), nil
		}
		return nil, shared.NewDomainError("INVALID_STATE", "Pay order is already settled")
	case payorder.StatusFailed:
		return nil, shared.NewDomainError("INVALID_STATE", "Pay order has failed")
	case payorder.StatusPending:
		return nil, shared.NewDomainError("INVALID_STATE", "Payment details have not been provisioned")
	}
	if txHash == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "tx_hash is required")
	}
	if order.TxHash != "" && order.TxHash != txHash {
		return nil, payorder.ErrTxHashAlreadySet
	}

	var (
		result  *payorder.VerificationResult
		outcome = payorder.OutcomeUnchanged
	)
	if order.Status != payorder.StatusExecutingOrder {
		r, err := s.verifier.Verify(ctx, order, txHash)
		if err != nil {
			return nil, err
		}
		result = &r
		outcome, err = order.ApplyVerification(r, s.policy, s.clock())
		if err != nil {
			return nil, err
		}
	}

	if order.Status == payorder.StatusExecutingOrder {
		s.applySettlement(ctx, order)
	}

	if order.HasPendingEvents() {
		if err := s.commit(ctx, order); err != nil {
			if !errors.Is(err, payorder.ErrConcurrentTransitionConflict) {
				return nil, err
			}
			return s.resolveConflict(ctx, order, txHash, result, err)
		}
	}

	switch outcome {
	case payorder.OutcomeExpired:
		return nil, payorder.ErrOrderExpired
	case payorder.OutcomeFailed:
		if last, ok := order.LastTransition(); ok && last.Event == payorder.EventConfirmationTimedOut {
			return nil, payorder.ErrConfirmationTimeout
		}
		return nil, payorder.NewVerificationMismatchError(result.Reason, order.MismatchCount, s.policy.MismatchRetryBudget)
	case payorder.OutcomeMismatchRecorded:
		return nil, payorder.NewVerificationMismatchError(result.Reason, order.MismatchCount, s.policy.MismatchRetryBudget)
	}

	return s.processResponse(order, result), nil
}

// resolveConflict decides what the loser of a concurrent write sees. If the
// winner applied the same transaction the reloaded order is returned.
func (s *PayOrderService) resolveConflict(ctx context.Context, lost *payorder.PayOrder, txHash string, result *payorder.VerificationResult, conflict error) (*ProcessResponse, error) {
	reloaded, err := s.repo.FindByIDForOrganization(ctx, lost.OrganizationID, lost.ID)
	if err != nil {
		return nil, conflict
	}
	if reloaded.Status == payorder.StatusExpired {
		return nil, payorder.ErrOrderExpired
	}
	if reloaded.ReachedWith(lost.Status, txHash) {
		s.logger.Debug("Concurrent submission already applied",
			zap.String("order_id", lost.ID.String()),
			zap.String("tx_hash", txHash),
			zap.String("status", string(reloaded.Status)),
		)
		return s.processResponse(reloaded, result), nil
	}
	return nil, conflict
}

// applySettlement asks the routing provider about an executing order. A
// provider failure is logged; the confirmed payment stands either way.
func (s *PayOrderService) applySettlement(ctx context.Context, order *payorder.PayOrder) {
	if s.routing == nil {
		return
	}
	report, err := fetchRouteStatus(ctx, s.retrier, s.routing, order)
	if err != nil {
		s.logger.Warn("Could not read settlement status",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return
	}
	if _, err := order.ApplySettlement(report, s.clock()); err != nil {
		s.logger.Warn("Settlement report rejected",
			zap.String("order_id", order.ID.String()),
			zap.String("route_status", string(report.Status)),
			zap.Error(err),
		)
	}
}

// closeOverdue closes an overdue order found by a request and reports why.
// Unpaid orders expire; unconfirmed ones fail on their confirmation deadline.
func (s *PayOrderService) closeOverdue(ctx context.Context, order *payorder.PayOrder, now time.Time) error {
	apply, closed := order.Expire, payorder.ErrOrderExpired
	if order.Status == payorder.StatusAwaitingConfirmation {
		apply, closed = order.TimeOutConfirmation, payorder.ErrConfirmationTimeout
	}
	if err := apply(now); err != nil {
		return err
	}
	if err := s.commit(ctx, order); err != nil && !errors.Is(err, payorder.ErrConcurrentTransitionConflict) {
		return err
	}
	return closed
}

// commit writes the order with a version check and publishes its events
func (s *PayOrderService) commit(ctx context.Context, order *payorder.PayOrder) error {
	if err := s.repo.SaveWithLock(ctx, order); err != nil {
		if errors.Is(err, payorder.ErrConcurrentTransitionConflict) {
			s.logger.Info("Lost concurrent pay order write",
				zap.String("order_id", order.ID.String()),
				zap.Int("version", order.Version),
			)
		}
		return err
	}
	s.publishEvents(ctx, order)
	return nil
}

func (s *PayOrderService) publishEvents(ctx context.Context, order *payorder.PayOrder) {
	events := order.GetDomainEvents()
	order.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish pay order events",
			zap.String("order_id", order.ID.String()),
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

func (s *PayOrderService) processResponse(order *payorder.PayOrder, result *payorder.VerificationResult) *ProcessResponse {
	resp := ToPayOrderResponse(order)
	return &ProcessResponse{Order: &resp, Verification: result}
}
