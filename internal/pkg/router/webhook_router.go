package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PawDesk/app/controllers"
)

type WebhookRouter struct {
	billing *controllers.BillingController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	// Billing provider webhooks (signature-verified in controller)
	app.Post("/webhooks/stripe", h.billing.HandleStripeWebhook)
}

func NewWebhookRouter(billing *controllers.BillingController) *WebhookRouter {
	return &WebhookRouter{billing: billing}
}
