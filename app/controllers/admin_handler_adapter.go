package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FoxUshiha/ServerPremiumSub/app/repository"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/billing"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/notify"
)

// Global controller instances
var (
	billingController *BillingController
	adminController   *AdminController
)

// InitializeControllers wires the global controllers with the services built
// at boot. Must run before the router installs any API route.
func InitializeControllers(svc *billing.Service, scheduler *billing.Scheduler, queue *notify.Queue) {
	logs := repository.GetGlobalFactory().GetPaymentLogRepository()
	billingController = NewBillingController(svc)
	adminController = NewAdminController(svc, scheduler, queue, logs)
}

// GetBillingController returns the global billing controller instance
func GetBillingController() *BillingController {
	if billingController == nil {
		panic("Controllers not initialized. Call InitializeControllers first.")
	}
	return billingController
}

// GetAdminController returns the global admin controller instance
func GetAdminController() *AdminController {
	if adminController == nil {
		panic("Controllers not initialized. Call InitializeControllers first.")
	}
	return adminController
}

// Adapter functions to maintain compatibility with the router registration

// HandleRegisterPayer - Adapter for payer registration
func HandleRegisterPayer(c *fiber.Ctx) error {
	return GetBillingController().HandleRegisterPayer(c)
}

// HandleUnsubscribe - Adapter for unsubscription
func HandleUnsubscribe(c *fiber.Ctx) error {
	return GetBillingController().HandleUnsubscribe(c)
}

// HandleGuildStatus - Adapter for the guild status roll-up
func HandleGuildStatus(c *fiber.Ctx) error {
	return GetBillingController().HandleGuildStatus(c)
}

// HandleAdminSetReceiver - Adapter for receiver account configuration
func HandleAdminSetReceiver(c *fiber.Ctx) error {
	return GetAdminController().HandleSetReceiver(c)
}

// HandleAdminSetPrice - Adapter for price configuration
func HandleAdminSetPrice(c *fiber.Ctx) error {
	return GetAdminController().HandleSetPrice(c)
}

// HandleAdminSetPremiumRole - Adapter for premium role configuration
func HandleAdminSetPremiumRole(c *fiber.Ctx) error {
	return GetAdminController().HandleSetPremiumRole(c)
}

// HandleAdminSetLogChannel - Adapter for log channel configuration
func HandleAdminSetLogChannel(c *fiber.Ctx) error {
	return GetAdminController().HandleSetLogChannel(c)
}

// HandleAdminGuildPayments - Adapter for the charge audit trail
func HandleAdminGuildPayments(c *fiber.Ctx) error {
	return GetAdminController().HandleGuildPayments(c)
}

// HandleAdminSweepNow - Adapter for the manual sweep trigger
func HandleAdminSweepNow(c *fiber.Ctx) error {
	return GetAdminController().HandleSweepNow(c)
}

// HandleAdminStats - Adapter for the statistics roll-up
func HandleAdminStats(c *fiber.Ctx) error {
	return GetAdminController().HandleStats(c)
}

// HandleAdminQueueStatus - Adapter for the notification queue monitor
func HandleAdminQueueStatus(c *fiber.Ctx) error {
	return GetAdminController().HandleQueueStatus(c)
}
