package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentLog is one append-only audit row per charge attempt. Rows are never
// updated or deleted; retries within the same cycle write new rows. UserID is
// empty for guild-level charges.
type PaymentLog struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	GuildID     string          `gorm:"type:varchar(32);not null;index" json:"guild_id"`
	UserID      string          `gorm:"type:varchar(32);default:''" json:"user_id"`
	FromAccount string          `gorm:"type:varchar(64);not null" json:"from_account"`
	ToAccount   string          `gorm:"type:varchar(64);not null" json:"to_account"`
	Amount      decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"amount"`
	Success     bool            `gorm:"not null" json:"success"`
	TxID        string          `gorm:"type:varchar(128);default:null" json:"tx_id"`
	RawResponse string          `gorm:"type:longtext" json:"raw_response"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
