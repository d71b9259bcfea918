package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PawDesk/app/controllers"
	"github.com/ManuelReschke/PawDesk/internal/pkg/middleware"
)

type ApiRouter struct {
	billing *controllers.BillingController
	apiKey  string
	storage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// nil storage keeps the limiter in memory
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    h.storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 billing routes
	v1 := api.Group("/v1/billing", middleware.APIKeyAuthMiddleware(h.apiKey))
	v1.Post("/charges", h.billing.HandleCreateCharge)
	v1.Post("/invoices/:id/retry", h.billing.HandleRetryInvoice)
	v1.Post("/subscriptions/:id/resync", h.billing.HandleResyncSubscription)
	v1.Post("/events/:id/replay", h.billing.HandleReplayEvent)
}

func NewApiRouter(billing *controllers.BillingController, apiKey string, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{billing: billing, apiKey: apiKey, storage: storage}
}
