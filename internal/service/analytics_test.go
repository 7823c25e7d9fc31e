package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
)

func TestAnalyticsServiceStatistics(t *testing.T) {
	t.Parallel()

	repo := &fakeDeliveryRepo{
		countByStateFn: func(ctx context.Context, from, to time.Time) ([]repository.StateCount, error) {
			return []repository.StateCount{
				{State: domain.StateSent, Count: 6},
				{State: domain.StateDelivered, Count: 4},
				{State: domain.StateFailed, Count: 3},
				{State: domain.StatePending, Count: 2},
			}, nil
		},
		countByTypeFn: func(ctx context.Context, from, to time.Time) ([]repository.GroupCount, error) {
			return []repository.GroupCount{
				{Key: "SCHEDULE_REMINDER", Count: 10},
				{Key: "CONTENT_UPDATE", Count: 5},
			}, nil
		},
		countByChannelFn: func(ctx context.Context, from, to time.Time) ([]repository.GroupCount, error) {
			return []repository.GroupCount{
				{Key: "EMAIL", Count: 12},
				{Key: "PUSH", Count: 3},
			}, nil
		},
		avgDeliveryLatencyFn: func(ctx context.Context, from, to time.Time) (time.Duration, error) {
			return 42 * time.Second, nil
		},
	}

	svc, err := NewAnalyticsService(repo, nil)
	if err != nil {
		t.Fatalf("NewAnalyticsService() error = %v", err)
	}

	to := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats, err := svc.Statistics(context.Background(), to.Add(-24*time.Hour), to)
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}

	if stats.Total != 15 {
		t.Fatalf("total = %d, want 15", stats.Total)
	}
	// 10 of 15 reached the recipient.
	if got := stats.DeliveryRate; math.Abs(got-10.0/15.0) > 1e-9 {
		t.Fatalf("delivery rate = %v, want %v", got, 10.0/15.0)
	}
	if stats.ByState["SENT"] != 6 || stats.ByState["DELIVERED"] != 4 {
		t.Fatalf("byState = %v", stats.ByState)
	}
	if stats.ByType["SCHEDULE_REMINDER"] != 10 {
		t.Fatalf("byType = %v", stats.ByType)
	}
	if stats.ByChannel["EMAIL"] != 12 {
		t.Fatalf("byChannel = %v", stats.ByChannel)
	}
	if stats.AvgDeliveryLatency != 42*time.Second {
		t.Fatalf("latency = %v, want 42s", stats.AvgDeliveryLatency)
	}
}

func TestAnalyticsServiceDeliveryRateEmptyWindow(t *testing.T) {
	t.Parallel()

	svc, err := NewAnalyticsService(&fakeDeliveryRepo{}, nil)
	if err != nil {
		t.Fatalf("NewAnalyticsService() error = %v", err)
	}

	to := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rate, err := svc.DeliveryRate(context.Background(), to.Add(-time.Hour), to)
	if err != nil {
		t.Fatalf("DeliveryRate() error = %v", err)
	}
	if rate != 0 {
		t.Fatalf("rate = %v, want 0 for empty window", rate)
	}
}

func TestAnalyticsServiceRejectsInvertedWindow(t *testing.T) {
	t.Parallel()

	svc, err := NewAnalyticsService(&fakeDeliveryRepo{}, nil)
	if err != nil {
		t.Fatalf("NewAnalyticsService() error = %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := svc.Statistics(context.Background(), at, at); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Statistics(inverted) error = %v, want ErrValidation", err)
	}
	if _, err := svc.DeliveryRate(context.Background(), at, at.Add(-time.Hour)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("DeliveryRate(inverted) error = %v, want ErrValidation", err)
	}
}

func TestAnalyticsServiceHealthClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		backlog    int64
		counts     []repository.StateCount
		wantStatus HealthStatus
	}{
		{
			name:       "healthy",
			backlog:    10,
			counts:     []repository.StateCount{{State: domain.StateDelivered, Count: 50}},
			wantStatus: HealthHealthy,
		},
		{
			name:       "warning on backlog",
			backlog:    backlogWarnLevel,
			counts:     []repository.StateCount{{State: domain.StateDelivered, Count: 50}},
			wantStatus: HealthWarning,
		},
		{
			name:       "critical on backlog",
			backlog:    backlogCriticalLevel,
			counts:     nil,
			wantStatus: HealthCritical,
		},
		{
			name:    "critical on recent failures",
			backlog: 0,
			counts: []repository.StateCount{
				{State: domain.StateFailed, Count: failedCriticalLevel},
				{State: domain.StateDelivered, Count: 10000},
			},
			wantStatus: HealthCritical,
		},
		{
			name:    "warning on low delivery rate",
			backlog: 0,
			counts: []repository.StateCount{
				{State: domain.StateDelivered, Count: 85},
				{State: domain.StateExpired, Count: 15},
			},
			wantStatus: HealthWarning,
		},
		{
			name:       "empty recent window stays healthy",
			backlog:    0,
			counts:     nil,
			wantStatus: HealthHealthy,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeDeliveryRepo{
				countPendingBacklogFn: func(ctx context.Context) (int64, error) {
					return tc.backlog, nil
				},
				countByStateFn: func(ctx context.Context, from, to time.Time) ([]repository.StateCount, error) {
					return tc.counts, nil
				},
			}

			svc, err := NewAnalyticsService(repo, nil)
			if err != nil {
				t.Fatalf("NewAnalyticsService() error = %v", err)
			}

			report, err := svc.Health(context.Background())
			if err != nil {
				t.Fatalf("Health() error = %v", err)
			}
			if report.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", report.Status, tc.wantStatus)
			}
		})
	}
}
