package gateway

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry the configured bearer token. With no token configured every request
// passes.
func (gw *GatewayConfig) BearerAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if gw.Token == "" {
			return c.Next()
		}

		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(gw.Token)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		return c.Next()
	}
}
