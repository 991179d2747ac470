package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Subscription is the billing relationship of one user inside one guild.
// There is at most one row per (guild, user) pair; deleting the guild
// cascades to its subscriptions.
type Subscription struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GuildID       string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_subscriptions_guild_user,priority:1" json:"guild_id" validate:"required,max=32"`
	UserID        string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_subscriptions_guild_user,priority:2;index" json:"user_id" validate:"required,max=32"`
	PayerAccount  string    `gorm:"type:varchar(64);default:null" json:"payer_account" validate:"max=64"`
	SubscribedAt  int64     `gorm:"not null;default:0" json:"subscribed_at"`
	LastRenewedAt int64     `gorm:"not null;default:0" json:"last_renewed_at"`
	Active        bool      `gorm:"not null;default:false;index" json:"active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Guild Guild `gorm:"foreignKey:GuildID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"guild,omitempty"`
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// HasPayer reports whether the subscriber registered a payer account.
func (s *Subscription) HasPayer() bool {
	return s.PayerAccount != ""
}

// RenewalAnchor is the timestamp the renewal deadline counts from: the last
// successful renewal, or the original subscription time if none happened yet.
func (s *Subscription) RenewalAnchor() int64 {
	if s.LastRenewedAt > 0 {
		return s.LastRenewedAt
	}
	return s.SubscribedAt
}

// CycleElapsed reports whether the subscription is due for renewal.
func (s *Subscription) CycleElapsed(cycle time.Duration, now time.Time) bool {
	return now.Unix()-s.RenewalAnchor() >= int64(cycle.Seconds())
}
