package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
)

// memGuildRepo is an in-memory repository.GuildRepository.
type memGuildRepo struct {
	mu     sync.Mutex
	guilds map[string]*models.Guild
}

func newMemGuildRepo() *memGuildRepo {
	return &memGuildRepo{guilds: make(map[string]*models.Guild)}
}

func (r *memGuildRepo) GetByID(id string) (*models.Guild, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guilds[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGuildRepo) List() ([]models.Guild, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Guild, 0, len(r.guilds))
	for _, g := range r.guilds {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memGuildRepo) Upsert(guild *models.Guild, columns ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.guilds[guild.ID]
	if !ok {
		cp := *guild
		r.guilds[guild.ID] = &cp
		return nil
	}
	for _, col := range columns {
		switch col {
		case "receiver_account":
			existing.ReceiverAccount = guild.ReceiverAccount
		case "price":
			existing.Price = guild.Price
		case "premium_role_id":
			existing.PremiumRoleID = guild.PremiumRoleID
		case "log_channel_id":
			existing.LogChannelID = guild.LogChannelID
		case "last_payment_at":
			existing.LastPaymentAt = guild.LastPaymentAt
		case "active":
			existing.Active = guild.Active
		}
	}
	*guild = *existing
	return nil
}

func (r *memGuildRepo) MarkPaid(id string, paidAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guilds[id]; ok {
		g.LastPaymentAt = paidAt
		g.Active = true
	}
	return nil
}

func (r *memGuildRepo) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guilds[id]; ok {
		g.Active = false
	}
	return nil
}

func (r *memGuildRepo) ForceLapse(id string, lastPaymentAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guilds[id]; ok {
		g.LastPaymentAt = lastPaymentAt
		g.Active = false
	}
	return nil
}

func (r *memGuildRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.guilds, id)
	return nil
}

func (r *memGuildRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.guilds)), nil
}

// memSubRepo is an in-memory repository.SubscriptionRepository.
type memSubRepo struct {
	mu     sync.Mutex
	nextID uint
	subs   map[string]*models.Subscription // guildID + "/" + userID
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[string]*models.Subscription)}
}

func subKey(guildID, userID string) string { return guildID + "/" + userID }

func (r *memSubRepo) GetByGuildAndUser(guildID, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[subKey(guildID, userID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubRepo) ListByGuild(guildID string) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subs {
		if s.GuildID == guildID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSubRepo) Upsert(sub *models.Subscription, columns ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subKey(sub.GuildID, sub.UserID)
	existing, ok := r.subs[key]
	if !ok {
		r.nextID++
		cp := *sub
		cp.ID = r.nextID
		r.subs[key] = &cp
		*sub = cp
		return nil
	}
	for _, col := range columns {
		switch col {
		case "payer_account":
			existing.PayerAccount = sub.PayerAccount
		case "active":
			existing.Active = sub.Active
		case "last_renewed_at":
			existing.LastRenewedAt = sub.LastRenewedAt
		case "subscribed_at":
			existing.SubscribedAt = sub.SubscribedAt
		}
	}
	*sub = *existing
	return nil
}

func (r *memSubRepo) MarkRenewed(id uint, renewedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == id {
			s.LastRenewedAt = renewedAt
			s.Active = true
		}
	}
	return nil
}

func (r *memSubRepo) Deactivate(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == id {
			s.Active = false
		}
	}
	return nil
}

func (r *memSubRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.subs)), nil
}

// memLogRepo is an in-memory repository.PaymentLogRepository.
type memLogRepo struct {
	mu   sync.Mutex
	rows []models.PaymentLog
	err  error
}

func (r *memLogRepo) Create(rec *models.PaymentLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	rec.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, *rec)
	return nil
}

func (r *memLogRepo) ListByGuild(guildID string, offset, limit int) ([]models.PaymentLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentLog
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].GuildID == guildID {
			out = append(out, r.rows[i])
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memLogRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.rows)), nil
}

func (r *memLogRepo) all() []models.PaymentLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PaymentLog(nil), r.rows...)
}

// chargeCall records one fakeCharger invocation.
type chargeCall struct {
	From   string
	To     string
	Amount decimal.Decimal
	Meta   ChargeMeta
	At     time.Time
}

// fakeCharger returns scripted verdicts keyed by "from->to" and records
// every call.
type fakeCharger struct {
	mu       sync.Mutex
	calls    []chargeCall
	verdicts map[string]Verdict
	fallback Verdict
	block    chan struct{}
}

func newFakeCharger(fallback Verdict) *fakeCharger {
	return &fakeCharger{verdicts: make(map[string]Verdict), fallback: fallback}
}

func (c *fakeCharger) script(from, to string, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[from+"->"+to] = v
}

func (c *fakeCharger) AttemptCharge(ctx context.Context, from, to string, amount decimal.Decimal, meta ChargeMeta) Verdict {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, chargeCall{From: from, To: to, Amount: amount, Meta: meta, At: time.Now()})
	if v, ok := c.verdicts[from+"->"+to]; ok {
		return v
	}
	return c.fallback
}

func (c *fakeCharger) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeCharger) allCalls() []chargeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chargeCall(nil), c.calls...)
}

// fakeSink records entitlement mutations and serves canned role holders.
type fakeSink struct {
	mu        sync.Mutex
	grants    []string // guild/user/role
	revokes   []string
	holders   map[string][]string // guild/role -> user ids
	grantErr  error
	revokeErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{holders: make(map[string][]string)}
}

func (s *fakeSink) Grant(ctx context.Context, guildID, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, guildID+"/"+userID+"/"+roleID)
	return s.grantErr
}

func (s *fakeSink) Revoke(ctx context.Context, guildID, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokes = append(s.revokes, guildID+"/"+userID+"/"+roleID)
	return s.revokeErr
}

func (s *fakeSink) RoleHolders(ctx context.Context, guildID, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.holders[guildID+"/"+roleID]...), nil
}

// notice is one recorded fakeNotifier enqueue.
type notice struct {
	UserID       string
	LogChannelID string
	Message      string
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Enqueue(userID, logChannelID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{UserID: userID, LogChannelID: logChannelID, Message: message})
}

func (n *fakeNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}
