package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opencampus/delivery-engine/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one periodic unit of work registered with the Scheduler. Run must
// be idempotent: a cycle may be skipped or repeated around process restarts.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type registeredJob struct {
	Job
	inFlight atomic.Bool
}

// Scheduler drives registered jobs on independent timers. Cycles never
// overlap per job: a tick that arrives while the previous run is still in
// flight is skipped and counted.
type Scheduler struct {
	jobs    []*registeredJob
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewScheduler(logger *zap.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %q: run function is required", job.Name)
	}

	s.jobs = append(s.jobs, &registeredJob{Job: job})
	return nil
}

// Start runs all registered jobs until context cancellation. Each job gets
// an initial run so due work does not wait for the first ticker edge.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs registered")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.runLoop(groupCtx, job)
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job *registeredJob) {
	s.logger.Info("scheduler job started",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval),
	)

	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job *registeredJob) {
	if !job.inFlight.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.IncJobSkipped(job.Name)
		}
		s.logger.Warn("scheduler job cycle skipped, previous run still in flight",
			zap.String("job", job.Name),
		)
		return
	}
	defer job.inFlight.Store(false)

	start := s.now()
	err := job.Run(ctx)
	elapsed := s.now().Sub(start)

	if s.metrics != nil {
		s.metrics.ObserveJobDuration(job.Name, elapsed)
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduler job cycle failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
}
