package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// ServerInterface lists every operation served under /api/v1. The shape
// mirrors public/docs/v1/openapi.yml; keep both in sync.
type ServerInterface interface {
	// GetPing is the unauthenticated liveness probe.
	GetPing(c *fiber.Ctx) error

	// Guild surface
	GetGuild(c *fiber.Ctx) error
	PutGuildReceiver(c *fiber.Ctx) error
	PutGuildPrice(c *fiber.Ctx) error
	PutGuildPremiumRole(c *fiber.Ctx) error
	PutGuildLogChannel(c *fiber.Ctx) error
	GetGuildPayments(c *fiber.Ctx) error

	// Subscription surface
	PostGuildSubscription(c *fiber.Ctx) error
	DeleteGuildSubscription(c *fiber.Ctx) error

	// Operational surface
	PostAdminSweep(c *fiber.Ctx) error
	GetAdminStats(c *fiber.Ctx) error
	GetAdminQueue(c *fiber.Ctx) error
}

// RegisterHandlers attaches all v1 operations to the router group. Auth
// middleware is installed by the caller; ping deliberately sits outside it.
func RegisterHandlers(router fiber.Router, si ServerInterface, auth fiber.Handler) {
	router.Get("/ping", si.GetPing)

	guilds := router.Group("/guilds", auth)
	guilds.Get("/:guildID", si.GetGuild)
	guilds.Put("/:guildID/receiver", si.PutGuildReceiver)
	guilds.Put("/:guildID/price", si.PutGuildPrice)
	guilds.Put("/:guildID/premium-role", si.PutGuildPremiumRole)
	guilds.Put("/:guildID/log-channel", si.PutGuildLogChannel)
	guilds.Get("/:guildID/payments", si.GetGuildPayments)
	guilds.Post("/:guildID/subscriptions", si.PostGuildSubscription)
	guilds.Delete("/:guildID/subscriptions/:userID", si.DeleteGuildSubscription)

	admin := router.Group("/admin", auth)
	admin.Post("/sweep", si.PostAdminSweep)
	admin.Get("/stats", si.GetAdminStats)
	admin.Get("/queue", si.GetAdminQueue)
}
