package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/FoxUshiha/ServerPremiumSub/app/controllers"
)

// Pong is the liveness probe response.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetGuild returns the guild configuration and subscription roll-up.
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetGuild(c *fiber.Ctx) error {
	return controllers.HandleGuildStatus(c)
}

// PutGuildReceiver configures the guild's payment-receiving account.
func (s *APIServer) PutGuildReceiver(c *fiber.Ctx) error {
	return controllers.HandleAdminSetReceiver(c)
}

// PutGuildPrice configures the guild's per-cycle price.
func (s *APIServer) PutGuildPrice(c *fiber.Ctx) error {
	return controllers.HandleAdminSetPrice(c)
}

// PutGuildPremiumRole configures the entitlement role.
func (s *APIServer) PutGuildPremiumRole(c *fiber.Ctx) error {
	return controllers.HandleAdminSetPremiumRole(c)
}

// PutGuildLogChannel configures the billing notice channel.
func (s *APIServer) PutGuildLogChannel(c *fiber.Ctx) error {
	return controllers.HandleAdminSetLogChannel(c)
}

// GetGuildPayments returns the guild's append-only charge audit trail.
func (s *APIServer) GetGuildPayments(c *fiber.Ctx) error {
	return controllers.HandleAdminGuildPayments(c)
}

// PostGuildSubscription registers a payer account and attempts the first
// charge synchronously.
func (s *APIServer) PostGuildSubscription(c *fiber.Ctx) error {
	return controllers.HandleRegisterPayer(c)
}

// DeleteGuildSubscription deactivates a subscription and revokes the role.
func (s *APIServer) DeleteGuildSubscription(c *fiber.Ctx) error {
	return controllers.HandleUnsubscribe(c)
}

// PostAdminSweep runs one renewal sweep synchronously.
func (s *APIServer) PostAdminSweep(c *fiber.Ctx) error {
	return controllers.HandleAdminSweepNow(c)
}

// GetAdminStats returns the cached statistics roll-up.
func (s *APIServer) GetAdminStats(c *fiber.Ctx) error {
	return controllers.HandleAdminStats(c)
}

// GetAdminQueue returns notification queue depth and delivery counters.
func (s *APIServer) GetAdminQueue(c *fiber.Ctx) error {
	return controllers.HandleAdminQueueStatus(c)
}
