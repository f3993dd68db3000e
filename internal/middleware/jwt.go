package middleware

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-groupwork/internal/utils"
)

var (
	errNoUser      = errors.New("token has no user")
	errInvalidUser = errors.New("token user is invalid")
)

// identity is what the host's token says about the caller.
type identity struct {
	UserID int64
	Role   string
}

// JWTProtected validates the host-issued bearer token and stores user_id (int64) and user_role in locals.
// The user id is read from sub, user_id or id; the role from role or the first non-empty entry of roles.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing or malformed")
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return key, nil }); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		who, err := identityFromClaims(claims)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", who.UserID)
		if who.Role != "" {
			c.Locals("user_role", who.Role)
		}
		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFromClaims(claims jwt.MapClaims) (identity, error) {
	var who identity
	for _, key := range []string{"sub", "user_id", "id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		userID, err := claimUserID(value)
		if err != nil {
			return identity{}, err
		}
		who.UserID = userID
		break
	}
	if who.UserID == 0 {
		return identity{}, errNoUser
	}

	if role, ok := claims["role"].(string); ok {
		who.Role = normalizeRoleName(role)
	}
	if who.Role == "" {
		if roles, ok := claims["roles"].([]interface{}); ok {
			for _, item := range roles {
				if role, ok := item.(string); ok && normalizeRoleName(role) != "" {
					who.Role = normalizeRoleName(role)
					break
				}
			}
		}
	}
	return who, nil
}

// claimUserID accepts positive integers encoded as JSON numbers or decimal strings.
func claimUserID(value interface{}) (int64, error) {
	var userID int64
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, errInvalidUser
		}
		userID = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errInvalidUser
		}
		userID = parsed
	default:
		return 0, errInvalidUser
	}
	if userID <= 0 {
		return 0, errInvalidUser
	}
	return userID, nil
}
