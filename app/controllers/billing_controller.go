package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/billing"
)

// ============================================================================
// BILLING CONTROLLER - Subscriber Operations
// ============================================================================

// BillingController handles subscriber-facing billing requests: payer
// registration with its immediate first charge, unsubscription and the guild
// status roll-up.
type BillingController struct {
	svc *billing.Service
}

// NewBillingController creates a new billing controller.
func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{
		svc: svc,
	}
}

// HandleRegisterPayer registers (or re-registers) a payer account for a
// (guild, user) pair and attempts the first charge synchronously. A failed
// charge is an explicit rejection carrying the upstream reason.
func (bc *BillingController) HandleRegisterPayer(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	if guildID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "guild id missing"})
	}

	var req struct {
		UserID       string `json:"user_id"`
		PayerAccount string `json:"payer_account"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payload"})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id is required"})
	}
	if req.PayerAccount == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payer_account is required"})
	}

	sub, err := bc.svc.RegisterPayer(c.Context(), guildID, req.UserID, req.PayerAccount)
	if err != nil {
		var chargeErr *billing.ChargeError
		switch {
		case errors.Is(err, billing.ErrGuildNotConfigured):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "guild_not_configured", "message": "Guild has no receiver account configured"})
		case errors.As(err, &chargeErr):
			// The subscription stays registered but inactive; the caller can
			// retry by re-registering.
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "charge_failed", "message": chargeErr.Reason})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to register payer"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(subscriptionResponse(sub))
}

// HandleUnsubscribe deactivates a subscription and revokes the premium role.
// The payer account stays on file for later re-registration.
func (bc *BillingController) HandleUnsubscribe(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	userID := c.Params("userID")
	if guildID == "" || userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "guild id and user id are required"})
	}

	if err := bc.svc.Unsubscribe(c.Context(), guildID, userID); err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to unsubscribe"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleGuildStatus returns the guild configuration with its subscription
// roll-up.
func (bc *BillingController) HandleGuildStatus(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	if guildID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "guild id missing"})
	}

	guild, subs, err := bc.svc.GuildStatus(c.Context(), guildID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Guild not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load guild"})
	}

	active := 0
	subList := make([]fiber.Map, 0, len(subs))
	for i := range subs {
		if subs[i].Active {
			active++
		}
		subList = append(subList, subscriptionResponse(&subs[i]))
	}

	return c.JSON(fiber.Map{
		"guild":                guildResponse(guild),
		"subscriptions":        subList,
		"active_subscriptions": active,
	})
}

// guildResponse shapes a guild row for the API. Money is serialized as the
// 8-digit fixed string the upstream consumes.
func guildResponse(g *models.Guild) fiber.Map {
	return fiber.Map{
		"id":               g.ID,
		"receiver_account": g.ReceiverAccount,
		"price":            g.Price.StringFixed(8),
		"premium_role_id":  g.PremiumRoleID,
		"log_channel_id":   g.LogChannelID,
		"active":           g.Active,
		"last_payment_at":  g.LastPaymentAt,
		"billable":         g.Billable(),
		"created_at":       g.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// subscriptionResponse shapes a subscription row for the API.
func subscriptionResponse(s *models.Subscription) fiber.Map {
	return fiber.Map{
		"guild_id":        s.GuildID,
		"user_id":         s.UserID,
		"payer_account":   s.PayerAccount,
		"active":          s.Active,
		"subscribed_at":   s.SubscribedAt,
		"last_renewed_at": s.LastRenewedAt,
	}
}
