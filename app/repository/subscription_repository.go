package repository

import (
	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByGuildAndUser retrieves the unique subscription for a (guild, user) pair
func (r *subscriptionRepository) GetByGuildAndUser(guildID, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("guild_id = ? AND user_id = ?", guildID, userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByGuild returns all subscriptions of one guild in registration order
func (r *subscriptionRepository) ListByGuild(guildID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("guild_id = ?", guildID).Order("id ASC").Find(&subs).Error
	return subs, err
}

// Upsert inserts the subscription or, on the (guild_id, user_id) unique key,
// updates only the named columns.
func (r *subscriptionRepository) Upsert(sub *models.Subscription, columns ...string) error {
	assignments := append(columns, "updated_at")
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "guild_id"},
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns(assignments),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("guild_id = ? AND user_id = ?", sub.GuildID, sub.UserID).First(sub).Error
}

// MarkRenewed records a verified successful renewal charge
func (r *subscriptionRepository) MarkRenewed(id uint, renewedAt int64) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_renewed_at": renewedAt,
		"active":          true,
	}).Error
}

// Deactivate flips the subscription inactive after a failed or skipped renewal
func (r *subscriptionRepository) Deactivate(id uint) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Update("active", false).Error
}

// Count returns the total number of subscriptions
func (r *subscriptionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Count(&count).Error
	return count, err
}
