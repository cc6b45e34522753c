package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/launchdeck/launchdeck/internal/pkg/env"
)

// InternalTokenAuth protects internal endpoints (retry drain, resync) with
// a shared secret: either "Authorization: Bearer <secret>" or the
// X-Scheduler-Token header a platform cron sets.
func InternalTokenAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := strings.TrimSpace(env.GetEnv("CRON_SECRET", ""))
		if secret == "" {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_auth_not_configured"})
		}

		token := extractInternalToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}

func extractInternalToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.Get("X-Scheduler-Token"))
}
