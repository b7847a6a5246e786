package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Report status values. Transitions are monotonic: pending -> generating ->
// completed|failed. completed and failed are terminal.
const (
	ReportStatusPending    = "pending"
	ReportStatusGenerating = "generating"
	ReportStatusCompleted  = "completed"
	ReportStatusFailed     = "failed"
)

// Failure reason codes retained on failed reports for operator visibility.
const (
	FailReasonSuperseded           = "superseded"
	FailReasonReasoningUnavailable = "reasoning_unavailable"
	FailReasonNoContext            = "no_context"
	FailReasonTimeout              = "timeout"
)

// ReportSource source types
const (
	SourceTypeNews       = "news"
	SourceTypeDisclosure = "disclosure"
	SourceTypeMarketData = "market_data"
)

// Tracking threshold bounds. Subscriber thresholds are clamped to
// [MinThresholdPct, MaxThresholdPct] in ThresholdStepPct increments.
const (
	DefaultThresholdPct = 3.0
	MinThresholdPct     = 1.0
	MaxThresholdPct     = 10.0
	ThresholdStepPct    = 0.5
)

// ClampThreshold snaps a subscriber threshold to the nearest valid step and
// clamps it into the allowed range.
func ClampThreshold(pct float64) float64 {
	stepped := math.Round(pct/ThresholdStepPct) * ThresholdStepPct
	if stepped < MinThresholdPct {
		return MinThresholdPct
	}
	if stepped > MaxThresholdPct {
		return MaxThresholdPct
	}
	return stepped
}

// Stock represents immutable instrument reference data.
// Rows are created by the seeding collaborator; the pipeline only reads them.
type Stock struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code   string    `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Name   string    `gorm:"size:100;index;not null" json:"name"`
	Market string    `gorm:"size:10;not null;default:KRX" json:"market"`
	Sector string    `gorm:"size:100" json:"sector,omitempty"`
}

// TableName specifies the table name for Stock
func (Stock) TableName() string {
	return "stocks"
}

// PriceSnapshot is one immutable price/volume observation for a stock.
// Append-only: written solely by the collector, never mutated. The unique
// (stock_id, captured_at) index rejects duplicate appends.
type PriceSnapshot struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StockID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_snapshots_stock_captured,priority:1" json:"stock_id"`
	Price      float64   `gorm:"type:decimal(15,2);not null" json:"price"`
	ChangePct  float64   `gorm:"type:decimal(10,4);not null" json:"change_pct"` // relative to prior close
	Volume     int64     `gorm:"not null;default:0" json:"volume"`
	CapturedAt time.Time `gorm:"not null;uniqueIndex:idx_snapshots_stock_captured,priority:2" json:"captured_at"`
}

// TableName specifies the table name for PriceSnapshot
func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}

// TrackingThreshold is a subscriber's per-stock alert sensitivity.
// Owned by the subscription collaborator; the pipeline treats rows as
// read-only input to spike detection.
type TrackingThreshold struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_thresholds_user_stock,priority:1" json:"user_id"`
	StockID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_thresholds_user_stock,priority:2;index" json:"stock_id"`
	ThresholdPct float64   `gorm:"type:decimal(5,2);not null;default:3.0" json:"threshold_pct"`
	AlertEnabled bool      `gorm:"not null;default:true" json:"alert_enabled"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for TrackingThreshold
func (TrackingThreshold) TableName() string {
	return "tracking_thresholds"
}

// Report is the causal analysis aggregate produced for a spike trigger.
//
// Idempotency: at most one non-failed report may exist per
// (stock_id, trigger_date). A stronger same-day trigger fails the in-flight
// row with reason "superseded" and creates a replacement row carrying
// Generation+1; late stage writes compare their generation before committing.
//
// Analysis holds the versioned JSON document. Historical rows may carry the
// legacy flat shape; the read path discriminates at decode time and never
// migrates stored rows.
type Report struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StockID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_reports_stock_date,priority:1" json:"stock_id"`
	TriggerDate      string     `gorm:"size:10;not null;index:idx_reports_stock_date,priority:2" json:"trigger_date"` // YYYY-MM-DD in KST
	TriggerPrice     float64    `gorm:"type:decimal(15,2);not null" json:"trigger_price"`
	TriggerChangePct float64    `gorm:"type:decimal(10,4);not null" json:"trigger_change_pct"`
	TriggerVolume    int64      `gorm:"not null;default:0" json:"trigger_volume"`
	Generation       int        `gorm:"not null;default:1" json:"generation"`
	Status           string     `gorm:"size:20;not null;default:pending;index" json:"status"`
	FailReason       string     `gorm:"size:40" json:"fail_reason,omitempty"`
	Summary          string     `gorm:"type:text" json:"summary,omitempty"`
	Analysis         []byte     `gorm:"type:jsonb" json:"analysis,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	Sources []ReportSource `gorm:"constraint:OnDelete:CASCADE" json:"sources,omitempty"`
}

// TableName specifies the table name for Report
func (Report) TableName() string {
	return "reports"
}

// Terminal reports whether the report reached a final status.
func (r *Report) Terminal() bool {
	return r.Status == ReportStatusCompleted || r.Status == ReportStatusFailed
}

// TriggerDecision is the resolution of a new spike trigger against the
// current report row for the same (stock, trigger_date).
type TriggerDecision int

const (
	TriggerCreate TriggerDecision = iota
	TriggerSupersede
	TriggerReject
)

// DecideTrigger resolves a new same-day trigger. existing is the latest
// report for the idempotency key, nil when none exists.
//
//   - No row, or only a failed row: create a fresh generation. A failed
//     report never blocks the day; a new qualifying trigger is the retry
//     path.
//   - Completed row: reject, the day already has its report.
//   - In-flight row: a strictly larger absolute change supersedes it. Equal
//     magnitude keeps the earlier trigger, so a flapping price cannot churn
//     generations.
func DecideTrigger(existing *Report, newChangePct float64) TriggerDecision {
	if existing == nil || existing.Status == ReportStatusFailed {
		return TriggerCreate
	}
	if existing.Status == ReportStatusCompleted {
		return TriggerReject
	}
	if math.Abs(newChangePct) > math.Abs(existing.TriggerChangePct) {
		return TriggerSupersede
	}
	return TriggerReject
}

// ReportSource is a news/disclosure item collected for a report.
// Immutable once written; cascades with its report.
type ReportSource struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"report_id"`
	SourceType  string     `gorm:"size:20;not null" json:"source_type"` // news, disclosure, market_data
	Title       string     `gorm:"size:500;not null" json:"title"`
	URL         string     `gorm:"size:1000;not null" json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// TableName specifies the table name for ReportSource
func (ReportSource) TableName() string {
	return "report_sources"
}

// ReportWebhook holds a notification webhook registration.
// Hooks fire on report completion or failure, filtered by stock symbols and
// minimum absolute trigger change.
type ReportWebhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthType          string     `gorm:"size:20" json:"auth_type"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header"`
	AuthValue         string     `json:"auth_value"`
	StockSymbols      string     `json:"stock_symbols"` // Stored as JSON array
	MinChangePct      *float64   `gorm:"type:decimal(5,2)" json:"min_change_pct,omitempty"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	TimeoutSeconds    int        `gorm:"default:10" json:"timeout_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for ReportWebhook
func (ReportWebhook) TableName() string {
	return "report_webhooks"
}

// ReportWebhookLog records a single webhook delivery attempt outcome
type ReportWebhookLog struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int        `gorm:"index;not null" json:"webhook_id"`
	ReportID       *uuid.UUID `gorm:"type:uuid;index" json:"report_id,omitempty"`
	TriggeredAt    time.Time  `gorm:"not null" json:"triggered_at"`
	Status         string     `gorm:"size:20;not null" json:"status"` // SUCCESS, FAILED
	HTTPStatusCode *int       `json:"http_status_code,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RetryAttempt   int        `gorm:"default:0" json:"retry_attempt"`
}

// TableName specifies the table name for ReportWebhookLog
func (ReportWebhookLog) TableName() string {
	return "report_webhook_logs"
}
