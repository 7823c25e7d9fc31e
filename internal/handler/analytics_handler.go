package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opencampus/delivery-engine/internal/service"
)

// defaultAnalyticsWindow is used when the caller gives no from/to bounds.
const defaultAnalyticsWindow = 24 * time.Hour

type AnalyticsService interface {
	Statistics(ctx context.Context, from, to time.Time) (*service.Statistics, error)
	DeliveryRate(ctx context.Context, from, to time.Time) (float64, error)
	Health(ctx context.Context) (*service.HealthReport, error)
}

type AnalyticsHandler struct {
	analytics AnalyticsService
	now       func() time.Time
}

func NewAnalyticsHandler(analytics AnalyticsService) (*AnalyticsHandler, error) {
	if analytics == nil {
		return nil, fmt.Errorf("analytics service is required")
	}
	return &AnalyticsHandler{analytics: analytics, now: time.Now}, nil
}

func RegisterAnalyticsRoutes(router fiber.Router, analytics AnalyticsService) error {
	h, err := NewAnalyticsHandler(analytics)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/analytics")
	v1.Get("/statistics", h.GetStatistics)
	v1.Get("/delivery-rate", h.GetDeliveryRate)
	v1.Get("/health", h.GetHealth)

	return nil
}

type statisticsResponse struct {
	From               time.Time        `json:"from"`
	To                 time.Time        `json:"to"`
	Total              int64            `json:"total"`
	ByState            map[string]int64 `json:"byState"`
	ByType             map[string]int64 `json:"byType"`
	ByChannel          map[string]int64 `json:"byChannel"`
	DeliveryRate       float64          `json:"deliveryRate"`
	AvgDeliverySeconds float64          `json:"avgDeliveryLatencySeconds"`
}

type healthResponse struct {
	Status             string  `json:"status"`
	PendingBacklog     int64   `json:"pendingBacklog"`
	RecentFailed       int64   `json:"recentFailed"`
	RecentDeliveryRate float64 `json:"recentDeliveryRate"`
}

func (h *AnalyticsHandler) GetStatistics(c *fiber.Ctx) error {
	from, to, err := h.parseWindow(c)
	if err != nil {
		return toHTTPError(err)
	}

	stats, err := h.analytics.Statistics(c.Context(), from, to)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(statisticsResponse{
		From:               stats.From,
		To:                 stats.To,
		Total:              stats.Total,
		ByState:            stats.ByState,
		ByType:             stats.ByType,
		ByChannel:          stats.ByChannel,
		DeliveryRate:       stats.DeliveryRate,
		AvgDeliverySeconds: stats.AvgDeliveryLatency.Seconds(),
	})
}

func (h *AnalyticsHandler) GetDeliveryRate(c *fiber.Ctx) error {
	from, to, err := h.parseWindow(c)
	if err != nil {
		return toHTTPError(err)
	}

	rate, err := h.analytics.DeliveryRate(c.Context(), from, to)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"from":         from,
		"to":           to,
		"deliveryRate": rate,
	})
}

func (h *AnalyticsHandler) GetHealth(c *fiber.Ctx) error {
	report, err := h.analytics.Health(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(healthResponse{
		Status:             string(report.Status),
		PendingBacklog:     report.PendingBacklog,
		RecentFailed:       report.RecentFailed,
		RecentDeliveryRate: report.RecentRate,
	})
}

func (h *AnalyticsHandler) parseWindow(c *fiber.Ctx) (time.Time, time.Time, error) {
	fromPtr, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toPtr, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	to := h.now().UTC()
	if toPtr != nil {
		to = toPtr.UTC()
	}
	from := to.Add(-defaultAnalyticsWindow)
	if fromPtr != nil {
		from = fromPtr.UTC()
	}

	return from, to, nil
}
