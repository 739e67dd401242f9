package payorder

import (
	"context"
	"errors"
	"time"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
	"go.uber.org/zap"
)

// ExpiryService closes overdue pay orders in the background: unpaid orders
// past expires_at expire, and orders whose transaction never confirmed fail
// once their confirmation deadline passes
type ExpiryService struct {
	repo      payorder.Repository
	publisher shared.EventPublisher
	batchSize int
	logger    *zap.Logger
	clock     func() time.Time
}

// NewExpiryService creates a new ExpiryService
func NewExpiryService(
	repo payorder.Repository,
	publisher shared.EventPublisher,
	batchSize int,
	logger *zap.Logger,
) *ExpiryService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryService{
		repo:      repo,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests
func (s *ExpiryService) WithClock(clock func() time.Time) *ExpiryService {
	s.clock = clock
	return s
}

// ExpirySweepResult contains statistics about one sweep
type ExpirySweepResult struct {
	TotalExpired   int       `json:"total_expired"`
	SuccessExpired int       `json:"success_expired"`
	TimedOut       int       `json:"timed_out"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// SweepExpired closes every overdue order. Orders that gained a transaction,
// confirmed, or changed concurrently are skipped.
func (s *ExpiryService) SweepExpired(ctx context.Context) (*ExpirySweepResult, error) {
	now := s.clock()
	result := &ExpirySweepResult{ProcessedAt: now}

	candidates, err := s.repo.FindExpirable(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to find expirable pay orders", zap.Error(err))
		return nil, err
	}

	result.TotalExpired = len(candidates)
	if result.TotalExpired == 0 {
		s.logger.Debug("No expirable pay orders found")
		return result, nil
	}

	for i := range candidates {
		order := &candidates[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}

		timeout := order.Status == payorder.StatusAwaitingConfirmation
		switch err := s.close(ctx, order, now); {
		case err == nil && timeout:
			result.TimedOut++
		case err == nil:
			result.SuccessExpired++
		case errors.Is(err, payorder.ErrNotExpirable), errors.Is(err, payorder.ErrConcurrentTransitionConflict):
			s.logger.Debug("Skipped pay order during expiry sweep",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			result.Skipped++
		default:
			s.logger.Error("Failed to expire pay order",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(order.Status)),
				zap.Error(err),
			)
			result.Failed++
		}
	}

	s.logger.Info("Completed pay order expiry sweep",
		zap.Int("total", result.TotalExpired),
		zap.Int("expired", result.SuccessExpired),
		zap.Int("timed_out", result.TimedOut),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

func (s *ExpiryService) close(ctx context.Context, order *payorder.PayOrder, now time.Time) error {
	apply := order.Expire
	if order.Status == payorder.StatusAwaitingConfirmation {
		apply = order.TimeOutConfirmation
	}
	if err := apply(now); err != nil {
		return err
	}
	if err := s.repo.SaveWithLock(ctx, order); err != nil {
		return err
	}

	events := order.GetDomainEvents()
	order.ClearDomainEvents()
	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			// The order is already closed; the event is best effort
			s.logger.Warn("Failed to publish pay order closing event",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
