package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/auth"
	"github.com/hlpay/paystream/internal/config"
	"github.com/hlpay/paystream/internal/identity"
)

// JWTAuth returns a middleware that validates JWT access tokens and checks token version.
func JWTAuth(cfg config.Config, repo identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := auth.ParseAndVerifyHS256(tokenStr, []byte(cfg.JWTSecret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		sub, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)
		verFloat, _ := claims["ver"].(float64)
		ver := int(verFloat)

		user, err := repo.FindByID(c.UserContext(), sub)
		if err != nil || user.TokenVersion != ver {
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		}

		c.Locals("user_id", sub)
		c.Locals("role", role)
		c.Locals("token_version", ver)
		return c.Next()
	}
}

// RequireRole gates a route group to users carrying the given role claim.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals("role").(string); got != role {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
