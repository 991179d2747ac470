package repository

import (
	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"gorm.io/gorm"
)

// paymentLogRepository implements the PaymentLogRepository interface
type paymentLogRepository struct {
	db *gorm.DB
}

// NewPaymentLogRepository creates a new payment log repository instance
func NewPaymentLogRepository(db *gorm.DB) PaymentLogRepository {
	return &paymentLogRepository{db: db}
}

// Create appends one audit row. Existing rows are never touched.
func (r *paymentLogRepository) Create(rec *models.PaymentLog) error {
	return r.db.Create(rec).Error
}

// ListByGuild returns a page of audit rows for one guild, newest first
func (r *paymentLogRepository) ListByGuild(guildID string, offset, limit int) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	err := r.db.Where("guild_id = ?", guildID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// Count returns the total number of audit rows
func (r *paymentLogRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentLog{}).Count(&count).Error
	return count, err
}
