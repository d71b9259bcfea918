package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PawDesk/app/controllers"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

func TestInstallRouter(t *testing.T) {
	app := fiber.New()
	bc := controllers.NewBillingController(&billing.Engine{}, nil, "", 0)
	InstallRouter(app, bc, "op-key", nil)

	// unconfigured webhook secret answers before touching the engine
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
