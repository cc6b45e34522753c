package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/launchdeck/launchdeck/internal/pkg/billing"
	counter "github.com/launchdeck/launchdeck/internal/pkg/metrics/counter"
	"github.com/launchdeck/launchdeck/internal/pkg/retryqueue"
)

// HandleRetryDrain runs one on-demand drain cycle. Auth is enforced by the
// internal token middleware on the route group.
func HandleRetryDrain(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := retryqueue.GetManager().DrainOnce(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "drain_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// HandleBillingResync signals the sync coalescer; the full reconciliation
// pass runs after the quiet window elapses.
func HandleBillingResync(c *fiber.Ctx) error {
	billing.GetCoalescer().Signal()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "scheduled": true})
}

// HandleRetryStats reports queue depth by status plus webhook outcome
// counters, for operators watching the subsystem.
func HandleRetryStats(c *fiber.Ctx) error {
	retries, err := retryqueue.GetManager().Stats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_failed"})
	}

	outcomes, err := counter.WebhookOutcomes()
	if err != nil {
		outcomes = map[string]int64{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"retries":  retries,
		"webhooks": outcomes,
	})
}
