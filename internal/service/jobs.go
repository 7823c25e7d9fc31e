package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opencampus/delivery-engine/internal/observability"
	"github.com/opencampus/delivery-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 100
	defaultParallelism = 16
)

// JobsConfig carries the cadence and batching knobs for the dispatch jobs.
type JobsConfig struct {
	PromoteInterval time.Duration
	PendingInterval time.Duration
	RetryInterval   time.Duration
	ExpireInterval  time.Duration
	PurgeInterval   time.Duration

	PromoteLookback time.Duration
	PendingMaxAge   time.Duration
	RetentionPeriod time.Duration

	BatchSize   int
	Parallelism int
}

func (c *JobsConfig) applyDefaults() {
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = 10 * time.Minute
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = 5 * time.Minute
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 15 * time.Minute
	}
	if c.ExpireInterval <= 0 {
		c.ExpireInterval = time.Hour
	}
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = 24 * time.Hour
	}
	if c.PromoteLookback <= 0 {
		c.PromoteLookback = 10 * time.Minute
	}
	if c.PendingMaxAge <= 0 {
		c.PendingMaxAge = 24 * time.Hour
	}
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = 30 * 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
}

// DispatchJobs owns the five periodic jobs that move delivery records
// through the state machine. Promotion, sending, retry, expiry, and purge
// run on separate cadences so one slow job cannot starve the others, and
// retry traffic stays deliberately smaller than first-attempt traffic.
type DispatchJobs struct {
	records    repository.DeliveryRepository
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        JobsConfig
	now        func() time.Time
}

func NewDispatchJobs(
	records repository.DeliveryRepository,
	dispatcher *Dispatcher,
	cfg JobsConfig,
	logger *zap.Logger,
) (*DispatchJobs, error) {
	if records == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &DispatchJobs{
		records:    records,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

func (j *DispatchJobs) SetMetrics(metrics *observability.Metrics) {
	if j == nil {
		return
	}
	j.metrics = metrics
}

// Register wires all five jobs into the scheduler.
func (j *DispatchJobs) Register(scheduler *Scheduler) error {
	jobs := []Job{
		{Name: "promote_scheduled", Interval: j.cfg.PromoteInterval, Run: j.PromoteScheduled},
		{Name: "process_pending", Interval: j.cfg.PendingInterval, Run: j.ProcessPending},
		{Name: "process_retries", Interval: j.cfg.RetryInterval, Run: j.ProcessRetries},
		{Name: "expire_stale", Interval: j.cfg.ExpireInterval, Run: j.ExpireStale},
		{Name: "purge_old", Interval: j.cfg.PurgeInterval, Run: j.PurgeOld},
	}

	for _, job := range jobs {
		if err := scheduler.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// PromoteScheduled moves due SCHEDULED records to PENDING.
func (j *DispatchJobs) PromoteScheduled(ctx context.Context) error {
	due, err := j.records.GetDueScheduled(ctx, j.cfg.PromoteLookback, j.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch due scheduled deliveries: %w", err)
	}

	promoted := 0
	for i := range due {
		recordCtx := observability.WithDeliveryID(ctx, due[i].ID)
		logger := observability.WithContextLogger(j.logger, recordCtx)

		ok, err := j.records.PromotePending(recordCtx, due[i].ID)
		if err != nil {
			logger.Error("failed to promote scheduled delivery", zap.Error(err))
			continue
		}
		if !ok {
			logger.Info("scheduled delivery state changed before promotion")
			continue
		}
		promoted++
	}

	if promoted > 0 {
		j.logger.Info("scheduled deliveries promoted", zap.Int("count", promoted))
	}
	return nil
}

// ProcessPending dispatches a bounded batch of PENDING records with bounded
// parallelism, joining every send before the cycle completes. The cycle
// duration is bounded by the slowest single send, not the sum.
func (j *DispatchJobs) ProcessPending(ctx context.Context) error {
	pending, err := j.records.GetPending(ctx, j.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending deliveries: %w", err)
	}

	if j.metrics != nil {
		if backlog, err := j.records.CountPendingBacklog(ctx); err == nil {
			j.metrics.SetPendingBacklog(backlog)
		}
	}

	if len(pending) == 0 {
		return nil
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Parallelism)
	for i := range pending {
		record := pending[i]
		g.Go(func() error {
			recordCtx := observability.WithDeliveryID(groupCtx, record.ID)
			if err := j.dispatcher.Dispatch(recordCtx, record.ID); err != nil {
				// Records are independent; one broken dispatch must not
				// abort the rest of the batch.
				observability.WithContextLogger(j.logger, recordCtx).Error("dispatch failed", zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}

// ProcessRetries requeues FAILED records whose retry time has arrived,
// incrementing the retry counter. The batch is half the normal size to damp
// cascading failure storms.
func (j *DispatchJobs) ProcessRetries(ctx context.Context) error {
	limit := j.cfg.BatchSize / 2
	if limit < 1 {
		limit = 1
	}

	due, err := j.records.GetDueRetries(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	requeued := 0
	for i := range due {
		recordCtx := observability.WithDeliveryID(ctx, due[i].ID)
		ok, err := j.records.RequeueForRetry(recordCtx, due[i].ID)
		if err != nil {
			observability.WithContextLogger(j.logger, recordCtx).Error("failed to requeue delivery for retry", zap.Error(err))
			continue
		}
		if ok {
			requeued++
		}
	}

	if requeued > 0 {
		j.logger.Info("failed deliveries requeued for retry", zap.Int("count", requeued))
	}
	return nil
}

// ExpireStale marks PENDING records untouched past the age limit as
// EXPIRED. Expiry is distinct from FAILED: the cause is pipeline
// inactivity, not a send error.
func (j *DispatchJobs) ExpireStale(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.cfg.PendingMaxAge)
	reason := fmt.Sprintf("expired after %d hours", int(j.cfg.PendingMaxAge.Hours()))
	expired, err := j.records.ExpireStale(ctx, cutoff, reason, j.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to expire stale deliveries: %w", err)
	}

	if expired > 0 {
		j.logger.Warn("stale pending deliveries expired", zap.Int64("count", expired))
	}
	return nil
}

// PurgeOld hard-deletes terminal records past the retention window.
func (j *DispatchJobs) PurgeOld(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.cfg.RetentionPeriod)
	purged, err := j.records.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge old deliveries: %w", err)
	}

	if purged > 0 {
		j.logger.Info("terminal deliveries purged", zap.Int64("count", purged))
	}
	return nil
}
