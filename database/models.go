// Package database provides database connection management for the
// ohmystock spike-alert analysis pipeline.
//
// The package includes:
//   - GORM/PostgreSQL connection management and schema migration
//   - A raw database/sql connection for aggregate stats queries
//   - Typed errors for pipeline write conflicts
//
// Data models (Stock, PriceSnapshot, Report, ...) are defined in the
// models_pkg package to avoid circular import dependencies; repositories
// live in the snapshots, reports and webhooks subpackages.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "ohmystock/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Migrate creates or updates the schema for all pipeline models
func (d *Database) Migrate() error {
	err := d.db.AutoMigrate(
		&models.Stock{},
		&models.PriceSnapshot{},
		&models.TrackingThreshold{},
		&models.Report{},
		&models.ReportSource{},
		&models.ReportWebhook{},
		&models.ReportWebhookLog{},
	)
	if err != nil {
		return WrapDBError("Migrate", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Type Aliases
// ============================================================================

// Core data models - type aliases so callers can import a single package.

type Stock = models.Stock
type PriceSnapshot = models.PriceSnapshot
type TrackingThreshold = models.TrackingThreshold
type Report = models.Report
type ReportSource = models.ReportSource
type ReportWebhook = models.ReportWebhook
type ReportWebhookLog = models.ReportWebhookLog

// Status, failure and source constants re-exported for callers.
const (
	ReportStatusPending    = models.ReportStatusPending
	ReportStatusGenerating = models.ReportStatusGenerating
	ReportStatusCompleted  = models.ReportStatusCompleted
	ReportStatusFailed     = models.ReportStatusFailed

	FailReasonSuperseded           = models.FailReasonSuperseded
	FailReasonReasoningUnavailable = models.FailReasonReasoningUnavailable
	FailReasonNoContext            = models.FailReasonNoContext
	FailReasonTimeout              = models.FailReasonTimeout

	SourceTypeNews       = models.SourceTypeNews
	SourceTypeDisclosure = models.SourceTypeDisclosure
	SourceTypeMarketData = models.SourceTypeMarketData

	DefaultThresholdPct = models.DefaultThresholdPct
	MinThresholdPct     = models.MinThresholdPct
	MaxThresholdPct     = models.MaxThresholdPct
)

// ClampThreshold snaps a subscriber threshold to the nearest valid step and
// clamps it into the allowed range.
func ClampThreshold(pct float64) float64 {
	return models.ClampThreshold(pct)
}
