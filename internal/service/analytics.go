package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
	"go.uber.org/zap"
)

// Health thresholds. Tuned for a single-tenant deployment; revisit if the
// pipeline grows past one scheduler instance per region.
const (
	healthWindow         = time.Hour
	backlogWarnLevel     = 1000
	backlogCriticalLevel = 5000
	failedWarnLevel      = 100
	failedCriticalLevel  = 500
	rateWarnLevel        = 0.90
	rateCriticalLevel    = 0.75
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthCritical HealthStatus = "CRITICAL"
)

// Statistics is the delivery-pipeline rollup for a time window.
type Statistics struct {
	From               time.Time
	To                 time.Time
	Total              int64
	ByState            map[string]int64
	ByType             map[string]int64
	ByChannel          map[string]int64
	DeliveryRate       float64
	AvgDeliveryLatency time.Duration
}

// HealthReport classifies pipeline health from backlog, failures, and the
// recent delivery rate.
type HealthReport struct {
	Status         HealthStatus
	PendingBacklog int64
	RecentFailed   int64
	RecentRate     float64
}

// AnalyticsService answers "how is the pipeline doing" from the record
// store. It never mutates records.
type AnalyticsService struct {
	records repository.DeliveryRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewAnalyticsService(records repository.DeliveryRepository, logger *zap.Logger) (*AnalyticsService, error) {
	if records == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnalyticsService{
		records: records,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *AnalyticsService) Statistics(ctx context.Context, from, to time.Time) (*Statistics, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: window end must be after window start", domain.ErrValidation)
	}

	stateCounts, err := s.records.CountByState(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count by state: %w", err)
	}

	typeCounts, err := s.records.CountByType(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}

	channelCounts, err := s.records.CountByChannel(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count by channel: %w", err)
	}

	latency, err := s.records.AverageDeliveryLatency(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to compute delivery latency: %w", err)
	}

	stats := &Statistics{
		From:               from,
		To:                 to,
		ByState:            make(map[string]int64, len(stateCounts)),
		ByType:             make(map[string]int64, len(typeCounts)),
		ByChannel:          make(map[string]int64, len(channelCounts)),
		AvgDeliveryLatency: latency,
	}

	for _, sc := range stateCounts {
		stats.ByState[sc.State.String()] = sc.Count
		stats.Total += sc.Count
	}
	for _, tc := range typeCounts {
		stats.ByType[tc.Key] = tc.Count
	}
	for _, cc := range channelCounts {
		stats.ByChannel[cc.Key] = cc.Count
	}

	stats.DeliveryRate = deliveryRate(stateCounts)

	return stats, nil
}

func (s *AnalyticsService) DeliveryRate(ctx context.Context, from, to time.Time) (float64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !to.After(from) {
		return 0, fmt.Errorf("%w: window end must be after window start", domain.ErrValidation)
	}

	stateCounts, err := s.records.CountByState(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count by state: %w", err)
	}

	return deliveryRate(stateCounts), nil
}

func (s *AnalyticsService) Health(ctx context.Context) (*HealthReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	backlog, err := s.records.CountPendingBacklog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending backlog: %w", err)
	}

	now := s.now().UTC()
	recentCounts, err := s.records.CountByState(ctx, now.Add(-healthWindow), now)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent deliveries: %w", err)
	}

	var recentFailed, recentTotal int64
	for _, sc := range recentCounts {
		recentTotal += sc.Count
		if sc.State == domain.StateFailed {
			recentFailed = sc.Count
		}
	}

	report := &HealthReport{
		PendingBacklog: backlog,
		RecentFailed:   recentFailed,
		RecentRate:     deliveryRate(recentCounts),
	}

	switch {
	case backlog >= backlogCriticalLevel,
		recentFailed >= failedCriticalLevel,
		recentTotal > 0 && report.RecentRate < rateCriticalLevel:
		report.Status = HealthCritical
	case backlog >= backlogWarnLevel,
		recentFailed >= failedWarnLevel,
		recentTotal > 0 && report.RecentRate < rateWarnLevel:
		report.Status = HealthWarning
	default:
		report.Status = HealthHealthy
	}

	return report, nil
}

// deliveryRate is (SENT + DELIVERED) / total over a window's state counts.
// An empty window reports 0.
func deliveryRate(counts []repository.StateCount) float64 {
	var total, succeeded int64
	for _, sc := range counts {
		total += sc.Count
		if sc.State == domain.StateSent || sc.State == domain.StateDelivered {
			succeeded += sc.Count
		}
	}
	if total == 0 {
		return 0
	}
	return float64(succeeded) / float64(total)
}
