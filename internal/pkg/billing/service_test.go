package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
)

type serviceFixture struct {
	guilds   *memGuildRepo
	subs     *memSubRepo
	charger  *fakeCharger
	sink     *fakeSink
	notifier *fakeNotifier
	svc      *Service
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		guilds:   newMemGuildRepo(),
		subs:     newMemSubRepo(),
		charger:  newFakeCharger(Verdict{Success: true, TxID: "tx-default"}),
		sink:     newFakeSink(),
		notifier: &fakeNotifier{},
		now:      time.Unix(1_700_000_000, 0),
	}
	f.svc = NewService(testBillingConfig(), f.guilds, f.subs, f.charger, f.sink, f.notifier)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestEnsureGuildCreatesProvisionalRow(t *testing.T) {
	f := newServiceFixture(t)

	g, err := f.svc.EnsureGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("EnsureGuild: %v", err)
	}
	if g.Active || g.Billable() {
		t.Fatal("first contact must create a provisional inactive guild")
	}
	if !g.Price.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("provisional guild must carry the default price, got %s", g.Price)
	}

	// Second contact returns the same row instead of re-creating it.
	again, err := f.svc.EnsureGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("EnsureGuild (second): %v", err)
	}
	if again.ID != g.ID {
		t.Fatalf("expected the existing row, got %+v", again)
	}
}

func TestConfigUpsertsNeverClobberSiblings(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetPrice(ctx, "g1", decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if _, err := f.svc.SetReceiverAccount(ctx, "g1", "recv-9"); err != nil {
		t.Fatalf("SetReceiverAccount: %v", err)
	}
	if _, err := f.svc.SetPremiumRole(ctx, "g1", "role-7"); err != nil {
		t.Fatalf("SetPremiumRole: %v", err)
	}
	if _, err := f.svc.SetLogChannel(ctx, "g1", "chan-3"); err != nil {
		t.Fatalf("SetLogChannel: %v", err)
	}

	g, err := f.guilds.GetByID("g1")
	if err != nil {
		t.Fatalf("get guild: %v", err)
	}
	if !g.Price.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("price clobbered by later attribute writes: %s", g.Price)
	}
	if g.ReceiverAccount != "recv-9" || g.PremiumRoleID != "role-7" || g.LogChannelID != "chan-3" {
		t.Fatalf("sibling attributes lost: %+v", g)
	}
}

func TestSetPriceRejectsBadValues(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetPrice(ctx, "g1", decimal.Zero); err == nil {
		t.Fatal("zero price must be rejected")
	}
	if _, err := f.svc.SetPrice(ctx, "g1", decimal.RequireFromString("-1")); err == nil {
		t.Fatal("negative price must be rejected")
	}
	if _, err := f.svc.SetPrice(ctx, "g1", decimal.RequireFromString("0.123456789")); err == nil {
		t.Fatal("more than 8 fractional digits must be rejected")
	}
	if _, err := f.svc.SetPrice(ctx, "g1", decimal.RequireFromString("0.12345678")); err != nil {
		t.Fatalf("8 fractional digits must be accepted, got %v", err)
	}
}

func TestRegisterPayerRequiresBillableGuild(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RegisterPayer(ctx, "missing", "u1", "payer-1"); !errors.Is(err, ErrGuildNotConfigured) {
		t.Fatalf("unknown guild: got %v, want ErrGuildNotConfigured", err)
	}

	// Provisional guild without a receiver account is equally unbillable.
	if _, err := f.svc.EnsureGuild(ctx, "g1"); err != nil {
		t.Fatalf("EnsureGuild: %v", err)
	}
	if _, err := f.svc.RegisterPayer(ctx, "g1", "u1", "payer-1"); !errors.Is(err, ErrGuildNotConfigured) {
		t.Fatalf("provisional guild: got %v, want ErrGuildNotConfigured", err)
	}
	if f.charger.callCount() != 0 {
		t.Fatal("no charge may run against an unconfigured guild")
	}
}

func TestRegisterPayerSuccessActivatesAndGrants(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetReceiverAccount(ctx, "g1", "recv"); err != nil {
		t.Fatalf("SetReceiverAccount: %v", err)
	}
	if _, err := f.svc.SetPremiumRole(ctx, "g1", "role-p"); err != nil {
		t.Fatalf("SetPremiumRole: %v", err)
	}
	f.charger.script("payer-1", "recv", Verdict{Success: true, TxID: "tx-reg"})

	sub, err := f.svc.RegisterPayer(ctx, "g1", "u1", "payer-1")
	if err != nil {
		t.Fatalf("RegisterPayer: %v", err)
	}
	if !sub.Active || sub.LastRenewedAt != f.now.Unix() {
		t.Fatalf("registration charge must activate immediately: %+v", sub)
	}
	if len(f.sink.grants) != 1 || f.sink.grants[0] != "g1/u1/role-p" {
		t.Fatalf("expected one role grant, got %v", f.sink.grants)
	}
	if f.charger.callCount() != 1 {
		t.Fatalf("registration runs exactly one immediate charge, got %d", f.charger.callCount())
	}
}

func TestRegisterPayerFailureIsSynchronousRejection(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetReceiverAccount(ctx, "g1", "recv"); err != nil {
		t.Fatalf("SetReceiverAccount: %v", err)
	}
	f.charger.script("payer-1", "recv", Verdict{Success: false, Reason: "insufficient_funds"})

	_, err := f.svc.RegisterPayer(ctx, "g1", "u1", "payer-1")
	var chargeErr *ChargeError
	if !errors.As(err, &chargeErr) {
		t.Fatalf("expected a ChargeError, got %v", err)
	}
	if chargeErr.Reason != "insufficient_funds" {
		t.Fatalf("rejection must carry the upstream reason, got %q", chargeErr.Reason)
	}

	// The subscription stays registered but inactive, ready for the next
	// sweep or a re-registration.
	sub, err := f.subs.GetByGuildAndUser("g1", "u1")
	if err != nil {
		t.Fatalf("subscription row must exist after a failed registration: %v", err)
	}
	if sub.Active {
		t.Fatal("failed registration must not activate the subscription")
	}
	if sub.PayerAccount != "payer-1" {
		t.Fatalf("payer account must stay on file, got %q", sub.PayerAccount)
	}
	if len(f.sink.grants) != 0 {
		t.Fatal("no role may be granted on a failed charge")
	}

	notices := f.notifier.all()
	if len(notices) != 1 || notices[0].UserID != "u1" {
		t.Fatalf("expected one failure notice, got %+v", notices)
	}
	if !strings.Contains(notices[0].Message, "insufficient_funds") {
		t.Fatalf("notice must reference the reason, got %q", notices[0].Message)
	}
}

func TestRegisterPayerReRegistrationResetsAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetReceiverAccount(ctx, "g1", "recv"); err != nil {
		t.Fatalf("SetReceiverAccount: %v", err)
	}
	f.charger.script("old-payer", "recv", Verdict{Success: false, Reason: "card expired"})
	if _, err := f.svc.RegisterPayer(ctx, "g1", "u1", "old-payer"); err == nil {
		t.Fatal("expected the first registration to fail")
	}

	f.charger.script("new-payer", "recv", Verdict{Success: true, TxID: "tx-2"})
	sub, err := f.svc.RegisterPayer(ctx, "g1", "u1", "new-payer")
	if err != nil {
		t.Fatalf("re-registration: %v", err)
	}
	if sub.PayerAccount != "new-payer" || !sub.Active {
		t.Fatalf("re-registration must swap the payer and reactivate: %+v", sub)
	}

	// Still one row per (guild, user).
	if n, _ := f.subs.Count(); n != 1 {
		t.Fatalf("expected a single subscription row, got %d", n)
	}
}

func TestUnsubscribeDeactivatesAndRevokes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetReceiverAccount(ctx, "g1", "recv"); err != nil {
		t.Fatalf("SetReceiverAccount: %v", err)
	}
	if _, err := f.svc.SetPremiumRole(ctx, "g1", "role-p"); err != nil {
		t.Fatalf("SetPremiumRole: %v", err)
	}
	if _, err := f.svc.RegisterPayer(ctx, "g1", "u1", "payer-1"); err != nil {
		t.Fatalf("RegisterPayer: %v", err)
	}

	if err := f.svc.Unsubscribe(ctx, "g1", "u1"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	sub, _ := f.subs.GetByGuildAndUser("g1", "u1")
	if sub.Active {
		t.Fatal("unsubscribe must deactivate the row")
	}
	if sub.PayerAccount != "payer-1" {
		t.Fatal("payer account stays on file for re-registration")
	}
	if len(f.sink.revokes) != 1 {
		t.Fatalf("expected one revoke, got %d", len(f.sink.revokes))
	}

	if err := f.svc.Unsubscribe(ctx, "g1", "nobody"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("unknown pair: got %v, want ErrSubscriptionNotFound", err)
	}
}

func TestGuildStatusRollsUpSubscriptions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetReceiverAccount(ctx, "g1", "recv"); err != nil {
		t.Fatalf("SetReceiverAccount: %v", err)
	}
	if _, err := f.svc.RegisterPayer(ctx, "g1", "u1", "p1"); err != nil {
		t.Fatalf("RegisterPayer u1: %v", err)
	}
	if _, err := f.svc.RegisterPayer(ctx, "g1", "u2", "p2"); err != nil {
		t.Fatalf("RegisterPayer u2: %v", err)
	}

	g, subs, err := f.svc.GuildStatus(ctx, "g1")
	if err != nil {
		t.Fatalf("GuildStatus: %v", err)
	}
	if g.ID != "g1" || len(subs) != 2 {
		t.Fatalf("unexpected roll-up: guild=%+v subs=%d", g, len(subs))
	}
}
