package entitlements

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// Sink mutates the externally-managed access grant tied to an active
// subscription. Implementations talk to the chat platform; every operation
// is best-effort and independently failable. Callers log failures and move
// on: a grant or revoke error never reverses a billing verdict.
type Sink interface {
	Grant(ctx context.Context, guildID, userID, roleID string) error
	Revoke(ctx context.Context, guildID, userID, roleID string) error
	RoleHolders(ctx context.Context, guildID, roleID string) ([]string, error)
}

// LogSink is the Sink used when no gateway connection is configured. It
// records the intended mutation and succeeds, so billing state transitions
// stay observable in development setups.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Grant(ctx context.Context, guildID, userID, roleID string) error {
	log.Infof("[Entitlements] grant role=%s user=%s guild=%s", roleID, userID, guildID)
	return nil
}

func (s *LogSink) Revoke(ctx context.Context, guildID, userID, roleID string) error {
	log.Infof("[Entitlements] revoke role=%s user=%s guild=%s", roleID, userID, guildID)
	return nil
}

func (s *LogSink) RoleHolders(ctx context.Context, guildID, roleID string) ([]string, error) {
	return nil, nil
}
