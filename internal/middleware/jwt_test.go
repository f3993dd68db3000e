package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func identityApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		id, _ := c.Locals("user_id").(int64)
		role, _ := c.Locals("user_role").(string)
		return c.SendString(strconv.FormatInt(id, 10) + ":" + role)
	})
	return app
}

func TestJWTProtectedStoresIdentity(t *testing.T) {
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{name: "numeric sub", claims: jwt.MapClaims{"sub": float64(42), "role": "Staff"}, want: "42:staff"},
		{name: "string user_id", claims: jwt.MapClaims{"user_id": "7", "roles": []any{"", "student"}}, want: "7:student"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+signed(t, tc.claims, testSecret))

			resp, err := identityApp().Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(body))
		})
	}
}

func TestJWTProtectedRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "wrong secret", header: "Bearer " + signed(t, jwt.MapClaims{"sub": float64(1)}, "other")},
		{name: "no user", header: "Bearer " + signed(t, jwt.MapClaims{"role": "staff"}, testSecret)},
		{name: "negative user", header: "Bearer " + signed(t, jwt.MapClaims{"sub": float64(-3)}, testSecret)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := identityApp().Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
