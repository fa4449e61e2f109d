package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/middleware"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})
	return app
}

func TestCorrelationIDReusesIncomingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, "desk-run-42")

	resp, err := correlationApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, "desk-run-42", resp.Header.Get(middleware.CorrelationHeader))
}

func TestCorrelationIDReplacesUnsafeHeader(t *testing.T) {
	for _, incoming := range []string{"bad id\nwith newline", strings.Repeat("a", 200), "<script>"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.CorrelationHeader, incoming)

		resp, err := correlationApp().Test(req)
		require.NoError(t, err)
		_, err = uuid.Parse(resp.Header.Get(middleware.CorrelationHeader))
		require.NoError(t, err, incoming)
	}
}

func TestCorrelationIDFallsBackToRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-7")

	resp, err := correlationApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-7", resp.Header.Get(middleware.CorrelationHeader))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Post("/grade", middleware.RateLimit("grade", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/grade", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	require.Equal(t, []int{fiber.StatusAccepted, fiber.StatusAccepted, fiber.StatusTooManyRequests}, statuses)
}
