package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/launchdeck/launchdeck/app/controllers"
	"github.com/launchdeck/launchdeck/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"ping": "pong",
		})
	})

	// Inbound provider events; signature-authenticated, not session-bound.
	api.Post("/billing/webhook", controllers.HandleBillingWebhook)

	// Internal endpoints for schedulers and operators.
	internal := api.Group("/internal", middleware.InternalTokenAuth())
	internal.Post("/retries/drain", controllers.HandleRetryDrain)
	internal.Get("/retries/stats", controllers.HandleRetryStats)
	internal.Post("/billing/resync", controllers.HandleBillingResync)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
