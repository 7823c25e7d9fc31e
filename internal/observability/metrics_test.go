package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncDeliverySent("EMAIL")
	metrics.IncDeliveryFailed("email", "Provider Rejected")
	metrics.ObserveSendDuration("email", 80*time.Millisecond)
	metrics.IncDispatchInFlight("email")
	metrics.DecDispatchInFlight("email")
	metrics.IncRetryScheduled("email")
	metrics.SetPendingBacklog(37)

	if got := testutil.ToFloat64(metrics.deliveriesSentTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("deliveries_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesFailedTotal.WithLabelValues("email", "provider rejected")); got != 1 {
		t.Fatalf("deliveries_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dispatchInFlight.WithLabelValues("email")); got != 0 {
		t.Fatalf("dispatch_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.pendingBacklog); got != 37 {
		t.Fatalf("pending_backlog = %v, want 37", got)
	}
}

func TestMetricsFailureReasonFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.IncDeliveryFailed("push", "   ")

	if got := testutil.ToFloat64(metrics.deliveriesFailedTotal.WithLabelValues("push", "unknown")); got != 1 {
		t.Fatalf("deliveries_failed_total = %v, want 1", got)
	}
}

func TestMetricsSchedulerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.ObserveJobDuration("process_pending", 240*time.Millisecond)
	metrics.IncJobSkipped("process_pending")
	metrics.IncJobSkipped("process_pending")

	if got := testutil.ToFloat64(metrics.schedulerJobSkipsTotal.WithLabelValues("process_pending")); got != 2 {
		t.Fatalf("scheduler_job_skips_total = %v, want 2", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareSkipsMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/metrics", "200")); got != 0 {
		t.Fatalf("http_requests_total = %v, want 0", got)
	}
}
