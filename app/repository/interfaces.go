package repository

import (
	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"gorm.io/gorm"
)

// GuildRepository defines the interface for guild-related database operations.
// Attribute writes are column-scoped upserts: setting one guild attribute must
// never clobber sibling attributes configured earlier.
type GuildRepository interface {
	GetByID(id string) (*models.Guild, error)
	List() ([]models.Guild, error)
	Upsert(guild *models.Guild, columns ...string) error
	MarkPaid(id string, paidAt int64) error
	Deactivate(id string) error
	ForceLapse(id string, lastPaymentAt int64) error
	Delete(id string) error
	Count() (int64, error)
}

// SubscriptionRepository defines the interface for subscription-related
// database operations. Rows are unique per (guild, user).
type SubscriptionRepository interface {
	GetByGuildAndUser(guildID, userID string) (*models.Subscription, error)
	ListByGuild(guildID string) ([]models.Subscription, error)
	Upsert(sub *models.Subscription, columns ...string) error
	MarkRenewed(id uint, renewedAt int64) error
	Deactivate(id uint) error
	Count() (int64, error)
}

// PaymentLogRepository defines the interface for the charge audit trail.
// The log is append-only: there are deliberately no update or delete methods.
type PaymentLogRepository interface {
	Create(rec *models.PaymentLog) error
	ListByGuild(guildID string, offset, limit int) ([]models.PaymentLog, error)
	Count() (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Guild        GuildRepository
	Subscription SubscriptionRepository
	PaymentLog   PaymentLogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Guild:        NewGuildRepository(db),
		Subscription: NewSubscriptionRepository(db),
		PaymentLog:   NewPaymentLogRepository(db),
	}
}
