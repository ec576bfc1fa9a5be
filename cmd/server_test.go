package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = ":memory:"
	cfg.Database.Migrate = true
	cfg.Identity.Provider = "memory"
	cfg.Identity.JWTSecret = "secret"
	cfg.Jobx.Backend = "memory"
	return &cfg
}

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(c.Cleanup)
	return c
}

func TestHealth(t *testing.T) {
	app := newApp(newTestContainer(t))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "healthy", body["db"])
	assert.NotContains(t, body, "redis")
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestUnknownRoute(t *testing.T) {
	app := newApp(newTestContainer(t))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutesMounted(t *testing.T) {
	app := newApp(newTestContainer(t))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/invitations", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/auth/callback", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "/login?error=no_code")
}

func TestRequestContextDeadline(t *testing.T) {
	app := fiber.New()
	app.Use(requestContext(time.Second))
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := c.UserContext().Deadline()
		return c.JSON(fiber.Map{"deadline": ok})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["deadline"])
}

func TestNewContainerRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Jobx.Backend = "kafka"

	_, err := NewContainer(context.Background(), cfg)
	assert.Error(t, err)
}
