package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-groupwork/internal/utils"
)

// RateLimit throttles a route per user and per stage. Anonymous callers are keyed by IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: func(c *fiber.Ctx) string { return rateLimitKey(identifier, c) },
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "Too many requests, try again shortly")
		},
	})
}

func rateLimitKey(identifier string, c *fiber.Ctx) string {
	subject := "ip:" + c.IP()
	if userID, ok := c.Locals("user_id").(int64); ok && userID > 0 {
		subject = "user:" + strconv.FormatInt(userID, 10)
	}

	parts := []string{identifier, subject}
	for _, param := range []string{"activity", "stage"} {
		if value := c.Params(param); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, ":")
}
