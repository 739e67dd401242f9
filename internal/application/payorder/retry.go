package payorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/payorder"
	"go.uber.org/zap"
)

// RetryConfig controls how provider calls are retried
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds each individual attempt
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the default provider retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		AttemptTimeout:  10 * time.Second,
	}
}

// CallObserver is told the outcome of every retried provider call
type CallObserver interface {
	ObserveProviderCall(operation string, attempts int, elapsed time.Duration, err error)
}

// Retrier runs provider calls with a per-attempt timeout and exponential backoff.
// Only ProviderUnavailable and RateLimited errors are retried.
type Retrier struct {
	cfg      RetryConfig
	logger   *zap.Logger
	observer CallObserver
}

// NewRetrier creates a new Retrier
func NewRetrier(cfg RetryConfig, logger *zap.Logger) *Retrier {
	defaults := DefaultRetryConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaults.AttemptTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{cfg: cfg, logger: logger}
}

// WithObserver attaches an observer, typically the metrics collector
func (r *Retrier) WithObserver(o CallObserver) *Retrier {
	r.observer = o
	return r
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// The last typed error is returned.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.InitialInterval
	exp.MaxInterval = r.cfg.MaxInterval
	exp.MaxElapsedTime = 0

	policy := &retryAfterBackOff{BackOff: backoff.WithMaxRetries(exp, uint64(r.cfg.MaxAttempts-1))}

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: attempt timed out after %s", payorder.NewProviderUnavailableError(operation), r.cfg.AttemptTimeout)
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}

		var rl *payorder.RateLimitedError
		if errors.As(err, &rl) {
			if rl.RetryAfter > r.cfg.MaxInterval {
				// Waiting that long would outlive the request
				return backoff.Permanent(err)
			}
			policy.hint = rl.RetryAfter
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Provider call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	start := time.Now()
	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
	if r.observer != nil {
		r.observer.ObserveProviderCall(operation, attempt, time.Since(start), err)
	}
	return err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, payorder.ErrProviderUnavailable) || errors.Is(err, payorder.ErrRateLimited)
}

// retryAfterBackOff stretches the next wait to a provider's Retry-After hint
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}
