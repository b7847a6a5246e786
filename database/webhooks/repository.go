package webhooks

import (
	"fmt"

	"gorm.io/gorm"

	"ohmystock/database"
	models "ohmystock/database/models_pkg"
)

// Repository handles database operations for the webhook registry
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new webhooks repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Active returns all active webhook registrations
func (r *Repository) Active() ([]models.ReportWebhook, error) {
	var hooks []models.ReportWebhook
	if err := r.db.Where("is_active = TRUE").Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("Active: %w", err)
	}
	return hooks, nil
}

// List returns all webhook registrations
func (r *Repository) List() ([]models.ReportWebhook, error) {
	var hooks []models.ReportWebhook
	if err := r.db.Order("id ASC").Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return hooks, nil
}

// Save creates a webhook registration
func (r *Repository) Save(hook *models.ReportWebhook) error {
	if err := r.db.Create(hook).Error; err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Update updates a webhook registration by id
func (r *Repository) Update(hook *models.ReportWebhook) error {
	res := r.db.Model(&models.ReportWebhook{}).Where("id = ?", hook.ID).Updates(hook)
	if res.Error != nil {
		return fmt.Errorf("Update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("webhook", hook.ID)
	}
	return nil
}

// Delete removes a webhook registration
func (r *Repository) Delete(id int) error {
	res := r.db.Delete(&models.ReportWebhook{}, id)
	if res.Error != nil {
		return fmt.Errorf("Delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// SaveLog records a delivery attempt outcome
func (r *Repository) SaveLog(entry *models.ReportWebhookLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("SaveLog: %w", err)
	}
	return nil
}
