package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRateLimitIsPerUserAndStage(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-Test-User"); user == "1" {
			c.Locals("user_id", int64(1))
		} else {
			c.Locals("user_id", int64(2))
		}
		return c.Next()
	})
	app.Post("/activities/:activity/stages/:stage/uploads", RateLimit("uploads", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(user, stage string) int {
		req := httptest.NewRequest(http.MethodPost, "/activities/act1/stages/"+stage+"/uploads", nil)
		req.Header.Set("X-Test-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, send("1", "upload"))
	require.Equal(t, fiber.StatusTooManyRequests, send("1", "upload"))
	require.Equal(t, fiber.StatusOK, send("1", "final"))
	require.Equal(t, fiber.StatusOK, send("2", "upload"))
}
