package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(key string) *fiber.App {
	app := fiber.New()
	app.Get("/ping", APIKeyAuthMiddleware(key), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		headers    map[string]string
		wantStatus int
	}{
		{name: "missing key", key: "s3cret", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong key", key: "s3cret", headers: map[string]string{"X-API-Key": "nope"}, wantStatus: fiber.StatusUnauthorized},
		{name: "header key", key: "s3cret", headers: map[string]string{"X-API-Key": "s3cret"}, wantStatus: fiber.StatusOK},
		{name: "bearer token", key: "s3cret", headers: map[string]string{"Authorization": "Bearer s3cret"}, wantStatus: fiber.StatusOK},
		{name: "not configured", key: "", headers: map[string]string{"X-API-Key": "s3cret"}, wantStatus: fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := newProtectedApp(tt.key).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
