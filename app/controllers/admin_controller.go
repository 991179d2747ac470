package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/FoxUshiha/ServerPremiumSub/app/repository"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/billing"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/cache"
	metrics "github.com/FoxUshiha/ServerPremiumSub/internal/pkg/metrics/counter"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/notify"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/statistics"
)

// ============================================================================
// ADMIN CONTROLLER - Guild Configuration & Operations
// ============================================================================

// AdminController handles guild configuration, the charge audit trail and the
// operational surfaces (manual sweep, statistics, queue monitor).
type AdminController struct {
	svc       *billing.Service
	scheduler *billing.Scheduler
	queue     *notify.Queue
	logs      repository.PaymentLogRepository
}

// NewAdminController creates a new admin controller.
func NewAdminController(svc *billing.Service, scheduler *billing.Scheduler, queue *notify.Queue, logs repository.PaymentLogRepository) *AdminController {
	return &AdminController{
		svc:       svc,
		scheduler: scheduler,
		queue:     queue,
		logs:      logs,
	}
}

// HandleSetReceiver configures the payment-receiving account, the attribute
// that makes a guild billable. Activation itself only happens through the
// next successful cycle charge.
func (ac *AdminController) HandleSetReceiver(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	var req struct {
		Account string `json:"account"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payload"})
	}
	if req.Account == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "account is required"})
	}

	guild, err := ac.svc.SetReceiverAccount(c.Context(), guildID, req.Account)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to set receiver account"})
	}

	log.Infof("[Admin] Guild %s receiver account set (from %s)", guild.ID, clientIP(c))
	return c.JSON(fiber.Map{"guild_id": guild.ID, "receiver_account": guild.ReceiverAccount})
}

// HandleSetPrice configures the per-cycle price charged to the guild and to
// each of its subscribers.
func (ac *AdminController) HandleSetPrice(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	var req struct {
		Price string `json:"price"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payload"})
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "price is not a decimal"})
	}

	guild, err := ac.svc.SetPrice(c.Context(), guildID, price)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	log.Infof("[Admin] Guild %s price set to %s (from %s)", guild.ID, guild.Price.StringFixed(8), clientIP(c))
	return c.JSON(fiber.Map{"guild_id": guild.ID, "price": guild.Price.StringFixed(8)})
}

// HandleSetPremiumRole configures the entitlement role granted to active
// subscribers. An empty role id clears it.
func (ac *AdminController) HandleSetPremiumRole(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	var req struct {
		RoleID string `json:"role_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payload"})
	}

	guild, err := ac.svc.SetPremiumRole(c.Context(), guildID, req.RoleID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to set premium role"})
	}

	return c.JSON(fiber.Map{"guild_id": guild.ID, "premium_role_id": guild.PremiumRoleID})
}

// HandleSetLogChannel configures the channel receiving billing notices. An
// empty channel id clears it.
func (ac *AdminController) HandleSetLogChannel(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	var req struct {
		ChannelID string `json:"channel_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payload"})
	}

	guild, err := ac.svc.SetLogChannel(c.Context(), guildID, req.ChannelID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to set log channel"})
	}

	return c.JSON(fiber.Map{"guild_id": guild.ID, "log_channel_id": guild.LogChannelID})
}

// HandleGuildPayments returns the append-only charge audit trail of a guild,
// newest first.
func (ac *AdminController) HandleGuildPayments(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	if guildID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "guild id missing"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	records, err := ac.logs.ListByGuild(guildID, offset, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment log"})
	}

	items := make([]fiber.Map, 0, len(records))
	for i := range records {
		rec := &records[i]
		items = append(items, fiber.Map{
			"id":           rec.ID,
			"guild_id":     rec.GuildID,
			"user_id":      rec.UserID,
			"from_account": rec.FromAccount,
			"to_account":   rec.ToAccount,
			"amount":       rec.Amount.StringFixed(8),
			"success":      rec.Success,
			"tx_id":        rec.TxID,
			"created_at":   rec.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"payments":  items,
		"page":      page,
		"page_size": pageSize,
	})
}

// HandleSweepNow triggers a single renewal sweep synchronously. A sweep
// already in flight is reported as a conflict instead of queuing another.
func (ac *AdminController) HandleSweepNow(c *fiber.Ctx) error {
	if ac.scheduler.Sweeping() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "A sweep is already running"})
	}

	log.Infof("[Admin] Manual sweep triggered (from %s)", clientIP(c))
	if err := ac.scheduler.SweepOnce(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Sweep failed: " + err.Error()})
	}

	return c.JSON(fiber.Map{"status": "completed"})
}

// HandleStats returns the cached statistics roll-up.
func (ac *AdminController) HandleStats(c *fiber.Ctx) error {
	return c.JSON(statistics.GetBillingStats())
}

// HandleQueueStatus returns the notification queue depth along with the
// buffered delivery counters not yet flushed to the guilds table.
func (ac *AdminController) HandleQueueStatus(c *fiber.Ctx) error {
	size, err := ac.queue.Size(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read queue size"})
	}

	sent, failed, err := metrics.PendingTotals(cache.GetClient())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read delivery counters"})
	}

	return c.JSON(fiber.Map{
		"pending":          size,
		"delivered_buffer": sent,
		"failed_buffer":    failed,
	})
}
