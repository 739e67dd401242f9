package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Interval pairs a job type with how often it is submitted
type Interval struct {
	Type  JobType
	Every time.Duration
}

// IntervalTrigger submits jobs to a Scheduler on fixed intervals
type IntervalTrigger struct {
	intervals []Interval
	scheduler *Scheduler
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a trigger. Intervals that are not positive are ignored.
func NewIntervalTrigger(scheduler *Scheduler, logger *zap.Logger, intervals ...Interval) *IntervalTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	active := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Every > 0 {
			active = append(active, iv)
		}
	}
	return &IntervalTrigger{
		intervals: active,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start starts one ticker loop per interval
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, iv := range t.intervals {
		t.wg.Add(1)
		go t.runLoop(ctx, iv)
		t.logger.Info("Interval trigger started",
			zap.String("job_type", string(iv.Type)),
			zap.Duration("every", iv.Every),
		)
	}
	return nil
}

// Stop stops the trigger loops
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context, iv Interval) {
	defer t.wg.Done()

	ticker := time.NewTicker(iv.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fire(iv.Type)
		}
	}
}

func (t *IntervalTrigger) fire(jobType JobType) {
	err := t.scheduler.Schedule(jobType)
	switch {
	case err == nil:
	case errors.Is(err, ErrJobAlreadyQueued):
		t.logger.Debug("Previous run still in progress, skipping tick",
			zap.String("job_type", string(jobType)),
		)
	default:
		t.logger.Warn("Failed to submit job",
			zap.String("job_type", string(jobType)),
			zap.Error(err),
		)
	}
}
