package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-groupwork/internal/utils"
)

// RequireRole lets the request through when user_role holds one of roles. Comparison ignores case and
// surrounding space; user_role may be a single role or a list.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleName(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		for _, role := range rolesFromLocals(c.Locals("user_role")) {
			if _, ok := allowed[role]; ok {
				return c.Next()
			}
		}
		return utils.SendError(c, fiber.StatusForbidden, "You are not permitted to manage projects")
	}
}

func rolesFromLocals(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{normalizeRoleName(v)}
	case []string:
		out := make([]string, 0, len(v))
		for _, role := range v {
			out = append(out, normalizeRoleName(role))
		}
		return out
	default:
		return nil
	}
}

func normalizeRoleName(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
