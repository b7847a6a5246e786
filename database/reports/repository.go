package reports

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ohmystock/database"
	models "ohmystock/database/models_pkg"
)

// Repository handles database operations for the report aggregate
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new reports repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// EnabledThresholds returns the enabled tracking thresholds for a stock
func (r *Repository) EnabledThresholds(stockID uuid.UUID) ([]models.TrackingThreshold, error) {
	var thresholds []models.TrackingThreshold
	err := r.db.Where("stock_id = ? AND alert_enabled = TRUE", stockID).
		Find(&thresholds).Error
	if err != nil {
		return nil, fmt.Errorf("EnabledThresholds: %w", err)
	}
	return thresholds, nil
}

// RegisterTrigger creates or supersedes the report for a spike trigger.
// The (stock_id, trigger_date) pair is the idempotency key: at most one
// non-failed report may exist for it.
//
//   - No open or completed report for the day: a new pending report is
//     created with the next generation number.
//   - An in-flight (pending/generating) report exists: if the new trigger's
//     absolute change is strictly larger it supersedes: the old row is
//     failed with reason "superseded" and a replacement is created with
//     generation+1. Otherwise database.ErrDuplicateTrigger.
//   - A completed report exists for the day: database.ErrDuplicateTrigger.
//     A failed report does not block; a fresh trigger is the only retry path.
func (r *Repository) RegisterTrigger(stockID uuid.UUID, triggerDate string, price, changePct float64, volume int64) (*models.Report, error) {
	var created *models.Report

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Report
		err := tx.Where("stock_id = ? AND trigger_date = ? AND status <> ?",
			stockID, triggerDate, models.ReportStatusFailed).
			Order("generation DESC").
			First(&existing).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			// No open or completed report for the day; fall through to create.
		case err != nil:
			return fmt.Errorf("RegisterTrigger.lookup: %w", err)
		default:
			switch models.DecideTrigger(&existing, changePct) {
			case models.TriggerReject:
				return database.ErrDuplicateTrigger
			case models.TriggerSupersede:
				res := tx.Model(&models.Report{}).
					Where("id = ? AND status IN ?", existing.ID,
						[]string{models.ReportStatusPending, models.ReportStatusGenerating}).
					Updates(map[string]interface{}{
						"status":      models.ReportStatusFailed,
						"fail_reason": models.FailReasonSuperseded,
					})
				if res.Error != nil {
					return fmt.Errorf("RegisterTrigger.supersede: %w", res.Error)
				}
				if res.RowsAffected == 0 {
					// The row reached a terminal state between lookup and update.
					return database.ErrDuplicateTrigger
				}
			}
		}

		var maxGen int
		row := tx.Model(&models.Report{}).
			Where("stock_id = ? AND trigger_date = ?", stockID, triggerDate).
			Select("COALESCE(MAX(generation), 0)").
			Row()
		if err := row.Scan(&maxGen); err != nil {
			return fmt.Errorf("RegisterTrigger.generation: %w", err)
		}

		report := &models.Report{
			ID:               uuid.New(),
			StockID:          stockID,
			TriggerDate:      triggerDate,
			TriggerPrice:     price,
			TriggerChangePct: changePct,
			TriggerVolume:    volume,
			Generation:       maxGen + 1,
			Status:           models.ReportStatusPending,
		}
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("RegisterTrigger.create: %w", err)
		}
		created = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MarkGenerating transitions a report from pending to generating. Returns
// database.ErrStaleGeneration when the row is no longer pending at the
// expected generation.
func (r *Repository) MarkGenerating(id uuid.UUID, generation int) error {
	res := r.db.Model(&models.Report{}).
		Where("id = ? AND generation = ? AND status = ?", id, generation, models.ReportStatusPending).
		Update("status", models.ReportStatusGenerating)
	if res.Error != nil {
		return fmt.Errorf("MarkGenerating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.ErrStaleGeneration
	}
	return nil
}

// ReplaceSources atomically replaces the collected sources of a generating
// report. The write is guarded by generation and status so a superseded
// stage's late-arriving result is discarded.
func (r *Repository) ReplaceSources(id uuid.UUID, generation int, sources []models.ReportSource) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Report{}).
			Where("id = ? AND generation = ? AND status = ?", id, generation, models.ReportStatusGenerating).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("ReplaceSources.guard: %w", err)
		}
		if count == 0 {
			return database.ErrStaleGeneration
		}

		if err := tx.Where("report_id = ?", id).Delete(&models.ReportSource{}).Error; err != nil {
			return fmt.Errorf("ReplaceSources.delete: %w", err)
		}
		for i := range sources {
			sources[i].ReportID = id
			if sources[i].ID == uuid.Nil {
				sources[i].ID = uuid.New()
			}
		}
		if len(sources) > 0 {
			if err := tx.Create(&sources).Error; err != nil {
				return fmt.Errorf("ReplaceSources.create: %w", err)
			}
		}
		return nil
	})
}

// Complete transitions a generating report to completed with its analysis
// document. Guarded by generation and status.
func (r *Repository) Complete(id uuid.UUID, generation int, summary string, analysis []byte) error {
	now := time.Now()
	res := r.db.Model(&models.Report{}).
		Where("id = ? AND generation = ? AND status = ?", id, generation, models.ReportStatusGenerating).
		Updates(map[string]interface{}{
			"status":       models.ReportStatusCompleted,
			"summary":      summary,
			"analysis":     analysis,
			"completed_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("Complete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.ErrStaleGeneration
	}
	return nil
}

// Fail transitions an in-flight report to failed with a reason code.
// Guarded by generation; terminal rows are left untouched.
func (r *Repository) Fail(id uuid.UUID, generation int, reason string) error {
	now := time.Now()
	res := r.db.Model(&models.Report{}).
		Where("id = ? AND generation = ? AND status IN ?", id, generation,
			[]string{models.ReportStatusPending, models.ReportStatusGenerating}).
		Updates(map[string]interface{}{
			"status":       models.ReportStatusFailed,
			"fail_reason":  reason,
			"completed_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("Fail: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.ErrStaleGeneration
	}
	return nil
}

// Pending returns up to limit pending reports, oldest first
func (r *Repository) Pending(limit int) ([]models.Report, error) {
	var reports []models.Report
	q := r.db.Where("status = ?", models.ReportStatusPending).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}
	return reports, nil
}

// GetByID returns a report with its sources preloaded
func (r *Repository) GetByID(id uuid.UUID) (*models.Report, error) {
	var report models.Report
	err := r.db.Preload("Sources").Where("id = ?", id).First(&report).Error
	if err == gorm.ErrRecordNotFound {
		return nil, database.NewNotFoundErrorWithID("report", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &report, nil
}

// Recent returns recent reports, newest first, optionally filtered by status
func (r *Repository) Recent(limit int, status string) ([]models.Report, error) {
	var reports []models.Report
	q := r.db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return reports, nil
}

// StockByID returns the stock reference row
func (r *Repository) StockByID(id uuid.UUID) (*models.Stock, error) {
	var stock models.Stock
	err := r.db.Where("id = ?", id).First(&stock).Error
	if err == gorm.ErrRecordNotFound {
		return nil, database.NewNotFoundErrorWithID("stock", id)
	}
	if err != nil {
		return nil, fmt.Errorf("StockByID: %w", err)
	}
	return &stock, nil
}

// SameSector returns up to limit stocks sharing a sector, excluding one id
func (r *Repository) SameSector(sector string, exclude uuid.UUID, limit int) ([]models.Stock, error) {
	var stocks []models.Stock
	err := r.db.Where("sector = ? AND id <> ?", sector, exclude).
		Limit(limit).
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("SameSector: %w", err)
	}
	return stocks, nil
}
