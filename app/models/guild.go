package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Guild is one served server with its own billing cycle. A guild without a
// receiver account is provisional: it exists in the table but cannot be
// billed and must stay inactive until an admin configures the account.
type Guild struct {
	ID              string          `gorm:"primaryKey;type:varchar(32)" json:"id" validate:"required,max=32"`
	LogChannelID    string          `gorm:"type:varchar(32);default:null;index" json:"log_channel_id" validate:"max=32"`
	ReceiverAccount string          `gorm:"type:varchar(64);default:null" json:"receiver_account" validate:"max=64"`
	Price           decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"price"`
	PremiumRoleID   string          `gorm:"type:varchar(32);default:null" json:"premium_role_id" validate:"max=32"`
	LastPaymentAt   int64           `gorm:"not null;default:0" json:"last_payment_at"`
	Active          bool            `gorm:"not null;default:false;index" json:"active"`
	NoticesSent     uint64          `gorm:"not null;default:0" json:"notices_sent"`
	NoticesFailed   uint64          `gorm:"not null;default:0" json:"notices_failed"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (g *Guild) Validate() error {
	v := validator.New()

	return v.Struct(g)
}

// Billable reports whether the guild has a receiver account configured.
func (g *Guild) Billable() bool {
	return g.ReceiverAccount != ""
}

// CycleElapsed reports whether the guild is due for its own charge: either it
// has never paid or a full cycle has passed since the last payment.
func (g *Guild) CycleElapsed(cycle time.Duration, now time.Time) bool {
	if g.LastPaymentAt == 0 {
		return true
	}
	return now.Unix()-g.LastPaymentAt >= int64(cycle.Seconds())
}
