package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Verdict is the orchestrator's final decision for one charge attempt:
// the definitive success flag, the resolved transaction id when one was
// confirmed or trusted, the serialized strategy payloads as written to the
// audit row, and the upstream failure reason when the verdict is negative.
type Verdict struct {
	Success bool
	TxID    string
	Bundle  string
	Reason  string
}

// ChargeMeta ties a charge attempt to its audit context. UserID is empty for
// guild-level charges.
type ChargeMeta struct {
	GuildID string
	UserID  string
}

// Charger is the single idempotent "attempt a charge" operation composed of
// the payment client and the outcome verifier. The scheduler and the
// registration path drive it; implementations write exactly one audit row
// per invocation and never surface transport errors to the caller.
type Charger interface {
	AttemptCharge(ctx context.Context, from, to string, amount decimal.Decimal, meta ChargeMeta) Verdict
}

// Notifier is the enqueue side of the notification queue. Enqueue must not
// block and must not fail the caller.
type Notifier interface {
	Enqueue(userID, logChannelID, message string)
}

var (
	// ErrGuildNotConfigured is returned when a billing action needs a
	// receiver account that no admin has configured yet.
	ErrGuildNotConfigured = errors.New("guild has no receiver account configured")

	// ErrSubscriptionNotFound is returned for actions on a (guild, user)
	// pair without a subscription row.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// ChargeError is the synchronous rejection for a failed registration charge.
// It carries the upstream reason so the caller can show it to the user.
type ChargeError struct {
	Reason string
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("charge failed: %s", e.Reason)
}
