package repository

import (
	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// guildRepository implements the GuildRepository interface
type guildRepository struct {
	db *gorm.DB
}

// NewGuildRepository creates a new guild repository instance
func NewGuildRepository(db *gorm.DB) GuildRepository {
	return &guildRepository{db: db}
}

// GetByID retrieves a guild by its platform identifier
func (r *guildRepository) GetByID(id string) (*models.Guild, error) {
	var guild models.Guild
	err := r.db.Where("id = ?", id).First(&guild).Error
	if err != nil {
		return nil, err
	}
	return &guild, nil
}

// List returns every guild row for the renewal sweep
func (r *guildRepository) List() ([]models.Guild, error) {
	var guilds []models.Guild
	err := r.db.Order("id ASC").Find(&guilds).Error
	return guilds, err
}

// Upsert inserts the guild or, if the row already exists, updates only the
// named columns. Sibling attributes set by earlier configuration calls are
// left untouched.
func (r *guildRepository) Upsert(guild *models.Guild, columns ...string) error {
	assignments := append(columns, "updated_at")
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "id"},
		},
		DoUpdates: clause.AssignmentColumns(assignments),
	}).Create(guild).Error; err != nil {
		return err
	}

	return r.db.Where("id = ?", guild.ID).First(guild).Error
}

// MarkPaid records a successful guild-level charge
func (r *guildRepository) MarkPaid(id string, paidAt int64) error {
	return r.db.Model(&models.Guild{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_payment_at": paidAt,
		"active":          true,
	}).Error
}

// Deactivate flips the guild inactive after a failed cycle charge
func (r *guildRepository) Deactivate(id string) error {
	return r.db.Model(&models.Guild{}).Where("id = ?", id).Update("active", false).Error
}

// ForceLapse marks the guild inactive with a back-dated payment timestamp so
// it becomes chargeable the moment a receiver account is configured.
func (r *guildRepository) ForceLapse(id string, lastPaymentAt int64) error {
	return r.db.Model(&models.Guild{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_payment_at": lastPaymentAt,
		"active":          false,
	}).Error
}

// Delete removes a guild and, via the FK constraint, its subscriptions
func (r *guildRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.Guild{}).Error
}

// Count returns the total number of guilds
func (r *guildRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Guild{}).Count(&count).Error
	return count, err
}
