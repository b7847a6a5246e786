package snapshots

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ohmystock/database"
	models "ohmystock/database/models_pkg"
)

// Repository handles database operations for price snapshot data
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new snapshots repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append writes one immutable price snapshot. An append carrying the same
// (stock_id, captured_at) as an existing row is rejected with
// database.ErrDuplicateSnapshot.
func (r *Repository) Append(snap *models.PriceSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if err := r.db.Create(snap).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") ||
			strings.Contains(err.Error(), "idx_snapshots_stock_captured") {
			return database.ErrDuplicateSnapshot
		}
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a stock, or nil if none exist
func (r *Repository) Latest(stockID uuid.UUID) (*models.PriceSnapshot, error) {
	var snap models.PriceSnapshot
	err := r.db.Where("stock_id = ?", stockID).
		Order("captured_at DESC").
		First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Latest: %w", err)
	}
	return &snap, nil
}

// CandidatesInBand returns snapshots whose change_pct falls inside
// [low, high] captured strictly before the cutoff, newest first. Used by the
// similarity engine as the hard candidate filter.
func (r *Repository) CandidatesInBand(stockID uuid.UUID, low, high float64, before time.Time) ([]models.PriceSnapshot, error) {
	var snaps []models.PriceSnapshot
	err := r.db.Where("stock_id = ? AND change_pct >= ? AND change_pct <= ? AND captured_at < ?",
		stockID, low, high, before).
		Order("captured_at DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("CandidatesInBand: %w", err)
	}
	return snaps, nil
}

// After returns up to limit snapshots captured strictly after the event
// time, oldest first. Used for trend and aftermath trajectories.
func (r *Repository) After(stockID uuid.UUID, event time.Time, limit int) ([]models.PriceSnapshot, error) {
	var snaps []models.PriceSnapshot
	err := r.db.Where("stock_id = ? AND captured_at > ?", stockID, event).
		Order("captured_at ASC").
		Limit(limit).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("After: %w", err)
	}
	return snaps, nil
}

// LatestSince returns the most recent snapshot captured at or after the
// cutoff, or nil if there is none. Used by sector impact lookups.
func (r *Repository) LatestSince(stockID uuid.UUID, since time.Time) (*models.PriceSnapshot, error) {
	var snap models.PriceSnapshot
	err := r.db.Where("stock_id = ? AND captured_at >= ?", stockID, since).
		Order("captured_at DESC").
		First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestSince: %w", err)
	}
	return &snap, nil
}

// TrackedStocks returns the stocks referenced by at least one enabled
// tracking threshold. The collector polls exactly this set.
func (r *Repository) TrackedStocks() ([]models.Stock, error) {
	var stocks []models.Stock
	err := r.db.
		Joins("JOIN tracking_thresholds tt ON tt.stock_id = stocks.id AND tt.alert_enabled = TRUE").
		Distinct("stocks.*").
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("TrackedStocks: %w", err)
	}
	return stocks, nil
}
