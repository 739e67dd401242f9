// Package scheduler runs the pay order background jobs: the expiry sweep and
// the settlement poll. Jobs go through a bounded worker pool; an
// IntervalTrigger submits them periodically.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus is where a job is in its run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobType identifies the work a job performs
type JobType string

const (
	JobTypeExpirySweep    JobType = "PAYORDER_EXPIRY_SWEEP"
	JobTypeSettlementPoll JobType = "PAYORDER_SETTLEMENT_POLL"
)

// Job is one submission of a background task. A failed attempt is retried
// in place, on the same worker, up to MaxRetries times.
type Job struct {
	ID          uuid.UUID
	Type        JobType
	Status      JobStatus
	Error       string
	Attempts    int
	MaxRetries  int
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func NewJob(jobType JobType, maxRetries int) *Job {
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Status:      JobStatusPending,
		MaxRetries:  max(maxRetries, 0),
		SubmittedAt: time.Now().UTC(),
	}
}

func (j *Job) begin(now time.Time) {
	j.Attempts++
	j.Status = JobStatusRunning
	j.Error = ""
	j.StartedAt = &now
	j.CompletedAt = nil
}

func (j *Job) finish(err error, now time.Time) {
	j.CompletedAt = &now
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = JobStatusSuccess
}

// CanRetry reports whether a failed job has retries left
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts <= j.MaxRetries
}

// JobExecutor runs the work behind a job type
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// JobObserver is told about every finished attempt
type JobObserver interface {
	ObserveJob(jobType string, elapsed time.Duration, err error)
}

// SchedulerConfig sizes the worker pool and the retry policy
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	// RetryAttempts is how many times a failed job is retried. The first
	// retry waits RetryDelay and each later one doubles it.
	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 2,
		JobTimeout:        5 * time.Minute,
		RetryAttempts:     1,
		RetryDelay:        10 * time.Second,
	}
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithJobObserver reports every attempt to o
func WithJobObserver(o JobObserver) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

// Scheduler runs jobs on a fixed pool of workers. At most one job per type
// is queued or running, so a slow sweep never piles up behind itself.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	observer JobObserver
	logger   *zap.Logger
	clock    func() time.Time

	jobs    chan *Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	queued  map[JobType]struct{}
}

func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	config.MaxConcurrentJobs = max(config.MaxConcurrentJobs, 1)
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultSchedulerConfig().JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("scheduler"),
		clock:    func() time.Time { return time.Now().UTC() },
		jobs:     make(chan *Job, 16),
		queued:   make(map[JobType]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the workers. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for id := range s.config.MaxConcurrentJobs {
		s.wg.Add(1)
		go s.worker(ctx, id)
	}
	s.logger.Info("Job scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers until ctx ends
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Schedule submits a new job of the given type
func (s *Scheduler) Schedule(jobType JobType) error {
	return s.SubmitJob(NewJob(jobType, s.config.RetryAttempts))
}

// SubmitJob queues job unless one of its type is already queued or running
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrSchedulerNotRunning
	}
	if _, busy := s.queued[job.Type]; busy {
		return ErrJobAlreadyQueued
	}
	select {
	case s.jobs <- job:
		s.queued[job.Type] = struct{}{}
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.run(ctx, job, s.logger.With(
				zap.Int("worker_id", id),
				zap.String("job_id", job.ID.String()),
				zap.String("job_type", string(job.Type)),
			))
		}
	}
}

// run executes job until it succeeds, runs out of retries, or ctx ends
func (s *Scheduler) run(ctx context.Context, job *Job, log *zap.Logger) {
	defer func() {
		s.mu.Lock()
		delete(s.queued, job.Type)
		s.mu.Unlock()
	}()

	delays := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.config.RetryDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		err := s.attempt(ctx, job)
		if err == nil {
			log.Debug("Job completed", zap.Int("attempts", job.Attempts))
			return
		}
		log.Error("Job failed", zap.Int("attempt", job.Attempts), zap.Error(err))
		if !job.CanRetry() || ctx.Err() != nil {
			return
		}

		wait := delays.NextBackOff()
		log.Info("Job scheduled for retry", zap.Duration("in", wait), zap.Int("max_retries", job.MaxRetries))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) attempt(ctx context.Context, job *Job) error {
	job.begin(s.clock())
	started := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := s.executor.Execute(jobCtx, job)
	cancel()

	job.finish(err, s.clock())
	if s.observer != nil {
		s.observer.ObserveJob(string(job.Type), time.Since(started), err)
	}
	return err
}
