package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PawDesk/app/controllers"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter mounts the provider webhooks and the operator API.
// limiterStorage may be nil.
func InstallRouter(app *fiber.App, billing *controllers.BillingController, apiKey string, limiterStorage fiber.Storage) {
	// Webhooks stay outside the API key and rate limit groups.
	setup(app, NewWebhookRouter(billing), NewApiRouter(billing, apiKey, limiterStorage))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
