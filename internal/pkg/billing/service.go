package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"github.com/FoxUshiha/ServerPremiumSub/app/repository"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/config"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/entitlements"
)

// Service provides the synchronous billing operations: guild configuration
// by admins and payer registration by subscribers. Registration failures are
// explicit rejections, unlike the scheduler's best-effort async notices.
type Service struct {
	cfg     *config.Billing
	guilds  repository.GuildRepository
	subs    repository.SubscriptionRepository
	charger Charger
	sink    entitlements.Sink
	notices Notifier

	now func() time.Time
}

// NewService creates a billing service.
func NewService(
	cfg *config.Billing,
	guilds repository.GuildRepository,
	subs repository.SubscriptionRepository,
	charger Charger,
	sink entitlements.Sink,
	notices Notifier,
) *Service {
	return &Service{
		cfg:     cfg,
		guilds:  guilds,
		subs:    subs,
		charger: charger,
		sink:    sink,
		notices: notices,
		now:     time.Now,
	}
}

// EnsureGuild returns the guild row, creating a provisional inactive one with
// the default price on first contact.
func (s *Service) EnsureGuild(ctx context.Context, guildID string) (*models.Guild, error) {
	_ = ctx
	id := strings.TrimSpace(guildID)
	if id == "" {
		return nil, errors.New("guild id is required")
	}

	guild, err := s.guilds.GetByID(id)
	if err == nil {
		return guild, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	guild = &models.Guild{
		ID:    id,
		Price: s.cfg.DefaultPrice,
	}
	if err := s.guilds.Upsert(guild); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Created provisional guild %s", id)
	return guild, nil
}

// SetReceiverAccount is the administrative action that makes a guild
// billable. It never touches sibling attributes.
func (s *Service) SetReceiverAccount(ctx context.Context, guildID, account string) (*models.Guild, error) {
	acct := strings.TrimSpace(account)
	if acct == "" {
		return nil, errors.New("receiver account is required")
	}
	if _, err := s.EnsureGuild(ctx, guildID); err != nil {
		return nil, err
	}

	guild := &models.Guild{
		ID:              strings.TrimSpace(guildID),
		ReceiverAccount: acct,
		Price:           s.cfg.DefaultPrice,
	}
	if err := s.guilds.Upsert(guild, "receiver_account"); err != nil {
		return nil, err
	}
	return guild, nil
}

// SetPrice updates the per-cycle price of a guild.
func (s *Service) SetPrice(ctx context.Context, guildID string, price decimal.Decimal) (*models.Guild, error) {
	if !price.IsPositive() {
		return nil, errors.New("price must be positive")
	}
	if price.Exponent() < -8 {
		return nil, fmt.Errorf("price supports at most 8 fractional digits, got %s", price)
	}
	if _, err := s.EnsureGuild(ctx, guildID); err != nil {
		return nil, err
	}

	guild := &models.Guild{
		ID:    strings.TrimSpace(guildID),
		Price: price,
	}
	if err := s.guilds.Upsert(guild, "price"); err != nil {
		return nil, err
	}
	return guild, nil
}

// SetPremiumRole updates the entitlement role granted to active subscribers.
func (s *Service) SetPremiumRole(ctx context.Context, guildID, roleID string) (*models.Guild, error) {
	if _, err := s.EnsureGuild(ctx, guildID); err != nil {
		return nil, err
	}

	guild := &models.Guild{
		ID:            strings.TrimSpace(guildID),
		PremiumRoleID: strings.TrimSpace(roleID),
		Price:         s.cfg.DefaultPrice,
	}
	if err := s.guilds.Upsert(guild, "premium_role_id"); err != nil {
		return nil, err
	}
	return guild, nil
}

// SetLogChannel updates the channel receiving billing notices.
func (s *Service) SetLogChannel(ctx context.Context, guildID, channelID string) (*models.Guild, error) {
	if _, err := s.EnsureGuild(ctx, guildID); err != nil {
		return nil, err
	}

	guild := &models.Guild{
		ID:           strings.TrimSpace(guildID),
		LogChannelID: strings.TrimSpace(channelID),
		Price:        s.cfg.DefaultPrice,
	}
	if err := s.guilds.Upsert(guild, "log_channel_id"); err != nil {
		return nil, err
	}
	return guild, nil
}

// RegisterPayer registers (or re-registers) a payer account for a
// (guild, user) pair and immediately attempts the first charge outside the
// sweep cadence. The subscription starts inactive; a verified success flips
// it active and grants the role. A failed charge returns a ChargeError and
// leaves the subscription registered but inactive, to be retried by
// re-registration or the next sweep.
func (s *Service) RegisterPayer(ctx context.Context, guildID, userID, payerAccount string) (*models.Subscription, error) {
	account := strings.TrimSpace(payerAccount)
	if account == "" {
		return nil, errors.New("payer account is required")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("user id is required")
	}

	guild, err := s.guilds.GetByID(strings.TrimSpace(guildID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGuildNotConfigured
		}
		return nil, err
	}
	if !guild.Billable() {
		return nil, ErrGuildNotConfigured
	}

	sub := &models.Subscription{
		GuildID:      guild.ID,
		UserID:       uid,
		PayerAccount: account,
		SubscribedAt: s.now().Unix(),
	}
	if err := s.subs.Upsert(sub, "payer_account", "active"); err != nil {
		return nil, err
	}

	verdict := s.charger.AttemptCharge(ctx, account, guild.ReceiverAccount, guild.Price, ChargeMeta{GuildID: guild.ID, UserID: uid})
	if !verdict.Success {
		s.notices.Enqueue(uid, guild.LogChannelID,
			fmt.Sprintf("Your premium subscription in server %s could not be started: %s", guild.ID, verdict.Reason))
		return nil, &ChargeError{Reason: verdict.Reason}
	}

	renewedAt := s.now().Unix()
	if err := s.subs.MarkRenewed(sub.ID, renewedAt); err != nil {
		log.Errorf("[Billing] Failed to mark subscription %d renewed: %v", sub.ID, err)
	}
	if guild.PremiumRoleID != "" {
		if err := s.sink.Grant(ctx, guild.ID, uid, guild.PremiumRoleID); err != nil {
			log.Warnf("[Billing] Failed to grant role %s to user %s in guild %s: %v", guild.PremiumRoleID, uid, guild.ID, err)
		}
	}

	sub.Active = true
	sub.LastRenewedAt = renewedAt
	return sub, nil
}

// Unsubscribe deactivates a subscription and revokes the role. The payer
// account stays on file for a later re-registration.
func (s *Service) Unsubscribe(ctx context.Context, guildID, userID string) error {
	sub, err := s.subs.GetByGuildAndUser(strings.TrimSpace(guildID), strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}

	if err := s.subs.Deactivate(sub.ID); err != nil {
		return err
	}

	guild, err := s.guilds.GetByID(sub.GuildID)
	if err == nil && guild.PremiumRoleID != "" {
		if err := s.sink.Revoke(ctx, guild.ID, sub.UserID, guild.PremiumRoleID); err != nil {
			log.Warnf("[Billing] Failed to revoke role from user %s in guild %s: %v", sub.UserID, guild.ID, err)
		}
	}
	return nil
}

// GuildStatus returns a guild with its subscriptions for the status surface.
func (s *Service) GuildStatus(ctx context.Context, guildID string) (*models.Guild, []models.Subscription, error) {
	_ = ctx
	guild, err := s.guilds.GetByID(strings.TrimSpace(guildID))
	if err != nil {
		return nil, nil, err
	}
	subs, err := s.subs.ListByGuild(guild.ID)
	if err != nil {
		return nil, nil, err
	}
	return guild, subs, nil
}
