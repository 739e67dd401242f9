package payorder

import (
	"context"
	"errors"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"go.uber.org/zap"
)

// SettlementService polls the routing provider for orders whose payment is
// confirmed and completes or refunds them
type SettlementService struct {
	repo      payorder.Repository
	routing   payorder.RoutingProvider
	retrier   *Retrier
	publisher shared.EventPublisher
	batchSize int
	logger    *zap.Logger
	clock     func() time.Time
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	repo payorder.Repository,
	routing payorder.RoutingProvider,
	retrier *Retrier,
	publisher shared.EventPublisher,
	batchSize int,
	logger *zap.Logger,
) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryConfig(), logger)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SettlementService{
		repo:      repo,
		routing:   routing,
		retrier:   retrier,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// SettlementPollResult contains statistics about one settlement poll
type SettlementPollResult struct {
	Checked     int       `json:"checked"`
	Completed   int       `json:"completed"`
	Refunded    int       `json:"refunded"`
	Pending     int       `json:"pending"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processed_at"`
}

// PollSettlements checks every order in EXECUTING_ORDER once
func (s *SettlementService) PollSettlements(ctx context.Context) (*SettlementPollResult, error) {
	result := &SettlementPollResult{ProcessedAt: s.clock()}

	orders, err := s.repo.FindByStatus(ctx, payorder.StatusExecutingOrder, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to find executing pay orders", zap.Error(err))
		return nil, err
	}
	if len(orders) == 0 {
		return result, nil
	}

	for i := range orders {
		order := &orders[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		report, err := fetchRouteStatus(ctx, s.retrier, s.routing, order)
		if err != nil {
			s.logger.Warn("Could not read settlement status",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			result.Failed++
			continue
		}

		outcome, err := order.ApplySettlement(report, s.clock())
		if err != nil {
			s.logger.Warn("Settlement report rejected",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		if outcome == payorder.OutcomeUnchanged {
			if report.Status == payorder.RouteStatusFailed {
				s.logger.Warn("Route failed without refund, needs review",
					zap.String("order_id", order.ID.String()),
					zap.String("route_id", report.RouteID),
					zap.String("detail", report.Detail),
				)
			}
			result.Pending++
			continue
		}

		if err := s.repo.SaveWithLock(ctx, order); err != nil {
			if errors.Is(err, payorder.ErrConcurrentTransitionConflict) {
				// A concurrent Process call settled it first
				result.Pending++
				continue
			}
			s.logger.Error("Failed to save settled pay order",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		s.publish(ctx, order)

		switch order.Status {
		case payorder.StatusCompleted:
			result.Completed++
		case payorder.StatusRefunded:
			result.Refunded++
		}
	}

	s.logger.Info("Completed settlement poll",
		zap.Int("checked", result.Checked),
		zap.Int("completed", result.Completed),
		zap.Int("refunded", result.Refunded),
		zap.Int("pending", result.Pending),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *SettlementService) publish(ctx context.Context, order *payorder.PayOrder) {
	events := order.GetDomainEvents()
	order.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish settlement events",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

// fetchRouteStatus reads the settlement status of an order's route
func fetchRouteStatus(ctx context.Context, retrier *Retrier, routing payorder.RoutingProvider, order *payorder.PayOrder) (payorder.RouteStatusReport, error) {
	if order.Route == nil {
		return payorder.RouteStatusReport{}, shared.NewDomainError("INVALID_STATE", "Pay order has no route")
	}
	var report payorder.RouteStatusReport
	err := retrier.Do(ctx, "routing.get_route", func(ctx context.Context) error {
		var err error
		report, err = routing.GetRoute(ctx, order.Route.RouteID)
		return err
	})
	return report, err
}
