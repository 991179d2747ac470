package billing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"github.com/FoxUshiha/ServerPremiumSub/app/repository"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/config"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/entitlements"
)

// Scheduler drives the recurring renewal sweep. Each sweep walks every guild
// and every due subscriber within it, invokes the charge orchestrator and
// applies the resulting state transition. Sweeps are single-flight: a ticker
// tick arriving while a sweep is still running is a no-op. Guilds and their
// subscribers are processed sequentially, with a fixed courtesy delay
// between successive subscriber charges.
type Scheduler struct {
	cfg     *config.Billing
	guilds  repository.GuildRepository
	subs    repository.SubscriptionRepository
	charger Charger
	sink    entitlements.Sink
	notices Notifier

	now func() time.Time

	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	sweeping atomic.Bool
}

// NewScheduler creates a renewal scheduler. It owns its run state, so
// several instances can coexist in tests.
func NewScheduler(
	cfg *config.Billing,
	guilds repository.GuildRepository,
	subs repository.SubscriptionRepository,
	charger Charger,
	sink entitlements.Sink,
	notices Notifier,
) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		guilds:  guilds,
		subs:    subs,
		charger: charger,
		sink:    sink,
		notices: notices,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the sweep ticker.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(s.cfg.SweepInterval)

	log.Infof("[Billing] Starting renewal scheduler (interval: %s, cycle: %s)", s.cfg.SweepInterval, s.cfg.Cycle)

	s.wg.Add(1)
	go s.run()
}

// Stop halts the ticker and waits for an in-flight sweep to finish. Sweeps
// are never cancelled mid-run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Billing] Stopping renewal scheduler...")
	s.ticker.Stop()
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[Billing] Renewal scheduler stopped")
}

// IsRunning returns whether the scheduler is currently started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Sweeping reports whether a sweep is in flight right now.
func (s *Scheduler) Sweeping() bool {
	return s.sweeping.Load()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ticker.C:
			if err := s.SweepOnce(context.Background()); err != nil {
				log.Errorf("[Billing] Sweep error: %v", err)
			}
		}
	}
}

// SweepOnce runs one full sweep over all guilds. It returns immediately when
// a sweep is already in flight.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	if !s.sweeping.CompareAndSwap(false, true) {
		log.Debug("[Billing] Sweep already in progress, skipping tick")
		return nil
	}
	defer s.sweeping.Store(false)

	guilds, err := s.guilds.List()
	if err != nil {
		return fmt.Errorf("list guilds: %w", err)
	}

	now := s.now()
	for i := range guilds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.processGuild(ctx, &guilds[i], now)
	}
	return nil
}

// processGuild applies the guild-level cycle check, then renews the guild's
// due subscribers. Subscribers are skipped entirely when the guild is not
// billable or failed its own charge this sweep.
func (s *Scheduler) processGuild(ctx context.Context, guild *models.Guild, now time.Time) {
	if !guild.Billable() {
		// Provisioning guild: keep it inactive with a back-dated deadline so
		// the first sweep after an admin configures the account bills it
		// immediately.
		lapsed := now.Add(-s.cfg.Cycle).Unix()
		if err := s.guilds.ForceLapse(guild.ID, lapsed); err != nil {
			log.Errorf("[Billing] Failed to lapse unconfigured guild %s: %v", guild.ID, err)
		}
		return
	}

	if guild.CycleElapsed(s.cfg.Cycle, now) {
		verdict := s.charger.AttemptCharge(ctx, guild.ReceiverAccount, s.cfg.MasterAccount, guild.Price, ChargeMeta{GuildID: guild.ID})
		if !verdict.Success {
			log.Warnf("[Billing] Guild %s cycle charge failed: %s", guild.ID, verdict.Reason)
			if err := s.guilds.Deactivate(guild.ID); err != nil {
				log.Errorf("[Billing] Failed to deactivate guild %s: %v", guild.ID, err)
			}
			s.revokeAllHolders(ctx, guild)
			if guild.LogChannelID != "" {
				s.notices.Enqueue("", guild.LogChannelID,
					fmt.Sprintf("Server premium charge failed: %s. Premium is disabled until the next successful charge.", verdict.Reason))
			}
			return
		}

		if err := s.guilds.MarkPaid(guild.ID, now.Unix()); err != nil {
			log.Errorf("[Billing] Failed to mark guild %s paid: %v", guild.ID, err)
		}
		log.Infof("[Billing] Guild %s cycle charge succeeded (tx: %s)", guild.ID, verdict.TxID)
	}

	subs, err := s.subs.ListByGuild(guild.ID)
	if err != nil {
		log.Errorf("[Billing] Failed to list subscriptions for guild %s: %v", guild.ID, err)
		return
	}

	for i := range subs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !subs[i].CycleElapsed(s.cfg.Cycle, now) {
			continue
		}
		if s.renewSubscription(ctx, guild, &subs[i], now) {
			// Courtesy delay between successive subscriber charges within
			// the same guild; the upstream is rate sensitive.
			s.pause(s.cfg.ChargeDelay)
		}
	}
}

// renewSubscription attempts one subscriber renewal and applies the
// transition. It reports whether a payment call was actually made, so the
// caller can space out upstream traffic.
func (s *Scheduler) renewSubscription(ctx context.Context, guild *models.Guild, sub *models.Subscription, now time.Time) bool {
	if !sub.HasPayer() {
		// Deadline reached with no payer account on file: deactivate and
		// notify without spending a payment call.
		if err := s.subs.Deactivate(sub.ID); err != nil {
			log.Errorf("[Billing] Failed to deactivate subscription %d: %v", sub.ID, err)
		}
		s.revoke(ctx, guild, sub.UserID)
		s.notices.Enqueue(sub.UserID, guild.LogChannelID,
			fmt.Sprintf("Your premium subscription in server %s expired: no payer account is registered.", guild.ID))
		return false
	}

	verdict := s.charger.AttemptCharge(ctx, sub.PayerAccount, guild.ReceiverAccount, guild.Price, ChargeMeta{GuildID: guild.ID, UserID: sub.UserID})
	if verdict.Success {
		if err := s.subs.MarkRenewed(sub.ID, now.Unix()); err != nil {
			log.Errorf("[Billing] Failed to mark subscription %d renewed: %v", sub.ID, err)
		}
		s.grant(ctx, guild, sub.UserID)
		if guild.LogChannelID != "" {
			s.notices.Enqueue("", guild.LogChannelID,
				fmt.Sprintf("Renewed premium for user %s (tx: %s).", sub.UserID, verdict.TxID))
		}
		return true
	}

	log.Infof("[Billing] Renewal failed for user %s in guild %s: %s", sub.UserID, guild.ID, verdict.Reason)
	if err := s.subs.Deactivate(sub.ID); err != nil {
		log.Errorf("[Billing] Failed to deactivate subscription %d: %v", sub.ID, err)
	}
	s.revoke(ctx, guild, sub.UserID)
	s.notices.Enqueue(sub.UserID, guild.LogChannelID,
		fmt.Sprintf("Your premium subscription in server %s could not be renewed: %s", guild.ID, verdict.Reason))
	return true
}

// grant best-effort grants the guild's premium role. A failure is logged and
// swallowed; it never reverses the billing verdict.
func (s *Scheduler) grant(ctx context.Context, guild *models.Guild, userID string) {
	if guild.PremiumRoleID == "" {
		return
	}
	if err := s.sink.Grant(ctx, guild.ID, userID, guild.PremiumRoleID); err != nil {
		log.Warnf("[Billing] Failed to grant role %s to user %s in guild %s: %v", guild.PremiumRoleID, userID, guild.ID, err)
	}
}

// revoke best-effort revokes the guild's premium role.
func (s *Scheduler) revoke(ctx context.Context, guild *models.Guild, userID string) {
	if guild.PremiumRoleID == "" {
		return
	}
	if err := s.sink.Revoke(ctx, guild.ID, userID, guild.PremiumRoleID); err != nil {
		log.Warnf("[Billing] Failed to revoke role %s from user %s in guild %s: %v", guild.PremiumRoleID, userID, guild.ID, err)
	}
}

// revokeAllHolders strips the premium role from every current holder after a
// failed guild-level charge.
func (s *Scheduler) revokeAllHolders(ctx context.Context, guild *models.Guild) {
	if guild.PremiumRoleID == "" {
		return
	}
	holders, err := s.sink.RoleHolders(ctx, guild.ID, guild.PremiumRoleID)
	if err != nil {
		log.Warnf("[Billing] Failed to list role holders for guild %s: %v", guild.ID, err)
		return
	}
	for _, userID := range holders {
		if err := s.sink.Revoke(ctx, guild.ID, userID, guild.PremiumRoleID); err != nil {
			log.Warnf("[Billing] Failed to revoke role from user %s in guild %s: %v", userID, guild.ID, err)
		}
	}
}

// pause sleeps for d but returns early on shutdown.
func (s *Scheduler) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-s.stopCh:
	case <-time.After(d):
	}
}
