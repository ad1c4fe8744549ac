package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk-backend/internal/cache"
	"github.com/helpdeskpro/helpdesk-backend/internal/observability"
	"github.com/helpdeskpro/helpdesk-backend/internal/persistence"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	breaches    *cache.BreachCache
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis, breaches *cache.BreachCache, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, postgres: postgres, redis: redis, breaches: breaches, metrics: metrics}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if err := h.postgres.Ping(ctx); err != nil {
		depStatus["postgres"] = err.Error()
		ready = false
	} else {
		depStatus["postgres"] = "ok"
	}

	if err := h.redis.Ping(ctx); err != nil {
		depStatus["redis"] = err.Error()
		ready = false
	} else {
		depStatus["redis"] = "ok"
	}

	body := fiber.Map{
		"status":       "ready",
		"dependencies": depStatus,
	}
	if snapshot, ok, err := h.breaches.Latest(ctx); err == nil && ok {
		body["sla_breaches"] = fiber.Map{
			"count":      len(snapshot.TicketIDs),
			"scanned_at": snapshot.ScannedAt,
		}
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}

	if ready {
		return c.JSON(body)
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
