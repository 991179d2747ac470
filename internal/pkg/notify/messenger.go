package notify

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// Messenger delivers user-facing notices through the chat platform. Both
// operations are best-effort: an unreachable recipient is an error the queue
// swallows, never retries.
type Messenger interface {
	SendDM(ctx context.Context, userID, message string) error
	PostLog(ctx context.Context, channelID, message string) error
}

// LogMessenger is the Messenger used when no gateway connection is
// configured. Notices land in the application log instead of a chat channel.
type LogMessenger struct{}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{}
}

func (m *LogMessenger) SendDM(ctx context.Context, userID, message string) error {
	log.Infof("[Notify] dm user=%s: %s", userID, message)
	return nil
}

func (m *LogMessenger) PostLog(ctx context.Context, channelID, message string) error {
	log.Infof("[Notify] log channel=%s: %s", channelID, message)
	return nil
}
