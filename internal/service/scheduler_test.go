package service

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerRegisterValidation(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil)

	if err := s.Register(Job{Interval: time.Second, Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := s.Register(Job{Name: "j", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for missing interval")
	}
	if err := s.Register(Job{Name: "j", Interval: time.Second}); err == nil {
		t.Fatal("expected error for missing run function")
	}
	if err := s.Register(Job{Name: "j", Interval: time.Second, Run: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
}

func TestSchedulerStartWithoutJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error when no jobs are registered")
	}
}

func TestSchedulerRunsJobImmediatelyAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	ran := make(chan struct{}, 1)
	s := NewScheduler(nil, nil)
	err := s.Register(Job{
		Name:     "probe",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestSchedulerSkipsOverlappingCycle(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil)

	var mu sync.Mutex
	runs := 0
	release := make(chan struct{})
	job := &registeredJob{Job: Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			<-release
			return nil
		},
	}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runOnce(context.Background(), job)
	}()

	// Wait until the first cycle holds the in-flight flag.
	for !job.inFlight.Load() {
		time.Sleep(time.Millisecond)
	}

	// A second cycle while the first is running must be skipped.
	s.runOnce(context.Background(), job)

	mu.Lock()
	got := runs
	mu.Unlock()
	if got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}

	close(release)
	wg.Wait()

	// After completion the job can run again.
	s.runOnce(context.Background(), job)
	mu.Lock()
	got = runs
	mu.Unlock()
	if got != 2 {
		t.Fatalf("runs after release = %d, want 2", got)
	}
}
