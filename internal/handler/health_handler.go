package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 3 * time.Second

type HealthHandler struct {
	sqlDB *sql.DB
	rdb   *redis.Client
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	h := &HealthHandler{sqlDB: sqlDB, rdb: rdb}
	app.Get("/livez", h.Livez)
	app.Get("/readyz", h.Readyz)
}

func (h *HealthHandler) Livez(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"service": "delivery-engine",
	})
}

func (h *HealthHandler) Readyz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	if err := h.sqlDB.PingContext(ctx); err != nil {
		checks["database"] = "down"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "down"
		ready = false
	} else {
		checks["redis"] = "ok"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
