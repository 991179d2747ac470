package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/env"
)

// APIKeyAuthMiddleware authenticates requests carrying the service API key.
// The key is shared with the chat-gateway process and administrative tooling;
// there is no per-user key space, so a constant-time comparison against the
// configured token is sufficient.
func APIKeyAuthMiddleware() fiber.Handler {
	token := strings.TrimSpace(env.GetEnv("API_TOKEN", ""))
	if token == "" {
		log.Print("api key middleware: API_TOKEN is not configured, rejecting all protected requests")
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		if token == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
