package scheduler

import (
	"context"
	"fmt"

	payorderapp "github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/application/payorder"
	"go.uber.org/zap"
)

// ExpirySweeper expires overdue pay orders
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (*payorderapp.ExpirySweepResult, error)
}

// SettlementPoller advances orders whose route is executing
type SettlementPoller interface {
	PollSettlements(ctx context.Context) (*payorderapp.SettlementPollResult, error)
}

// PayOrderJobExecutor dispatches pay order jobs to the application services
type PayOrderJobExecutor struct {
	expiry     ExpirySweeper
	settlement SettlementPoller
	logger     *zap.Logger
}

// NewPayOrderJobExecutor creates an executor. A nil settlement poller makes
// settlement jobs no-ops, for deployments without a routing provider.
func NewPayOrderJobExecutor(expiry ExpirySweeper, settlement SettlementPoller, logger *zap.Logger) *PayOrderJobExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayOrderJobExecutor{
		expiry:     expiry,
		settlement: settlement,
		logger:     logger,
	}
}

// Execute implements JobExecutor
func (e *PayOrderJobExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobTypeExpirySweep:
		if e.expiry == nil {
			return nil
		}
		result, err := e.expiry.SweepExpired(ctx)
		if err != nil {
			return fmt.Errorf("expiry sweep: %w", err)
		}
		if result.Failed > 0 {
			e.logger.Warn("Expiry sweep left orders unexpired",
				zap.String("job_id", job.ID.String()),
				zap.Int("failed", result.Failed),
			)
		}
		return nil
	case JobTypeSettlementPoll:
		if e.settlement == nil {
			return nil
		}
		if _, err := e.settlement.PollSettlements(ctx); err != nil {
			return fmt.Errorf("settlement poll: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
}
