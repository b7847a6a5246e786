package app

import (
	"errors"
	"log"
	"math"

	"github.com/google/uuid"

	"ohmystock/database"
	models "ohmystock/database/models_pkg"
)

// TriggerStore is the report-side storage the detector writes triggers to
type TriggerStore interface {
	EnabledThresholds(stockID uuid.UUID) ([]models.TrackingThreshold, error)
	RegisterTrigger(stockID uuid.UUID, triggerDate string, price, changePct float64, volume int64) (*models.Report, error)
}

// Canceller aborts an in-flight pipeline run when its report is superseded
type Canceller interface {
	Cancel(stockID uuid.UUID, triggerDate string)
}

// SpikeDetector turns fresh price snapshots into report triggers.
//
// A snapshot triggers when its absolute change meets the most sensitive
// enabled threshold for the stock. Trigger registration is idempotent per
// (stock, KST date); a stronger same-day move supersedes the in-flight run.
type SpikeDetector struct {
	store     TriggerStore
	canceller Canceller
}

// NewSpikeDetector creates a spike detector
func NewSpikeDetector(store TriggerStore) *SpikeDetector {
	return &SpikeDetector{store: store}
}

// SetCanceller wires the in-flight run registry. Optional; without it a
// superseded run keeps executing until its guarded writes are rejected.
func (d *SpikeDetector) SetCanceller(c Canceller) {
	d.canceller = c
}

// Evaluate checks one snapshot against the stock's thresholds and registers
// a trigger when it qualifies. Returns the created pending report, or nil
// when nothing triggered. A duplicate same-day trigger is not an error.
func (d *SpikeDetector) Evaluate(stock *models.Stock, snap *models.PriceSnapshot) (*models.Report, error) {
	threshold, ok, err := d.effectiveThreshold(snap.StockID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if math.Abs(snap.ChangePct) < threshold {
		return nil, nil
	}

	triggerDate := TradingDate(snap.CapturedAt)
	report, err := d.store.RegisterTrigger(snap.StockID, triggerDate, snap.Price, snap.ChangePct, snap.Volume)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateTrigger) {
			// Already covered by an equal-or-stronger same-day trigger.
			return nil, nil
		}
		return nil, err
	}

	if report.Generation > 1 && d.canceller != nil {
		d.canceller.Cancel(snap.StockID, triggerDate)
	}

	log.Printf("📊 Spike trigger: %s %+.1f%% >= %.1f%% (gen %d)",
		stock.Code, snap.ChangePct, threshold, report.Generation)
	return report, nil
}

// effectiveThreshold returns the lowest clamped enabled threshold for the
// stock. ok is false when no subscriber tracks it.
func (d *SpikeDetector) effectiveThreshold(stockID uuid.UUID) (float64, bool, error) {
	thresholds, err := d.store.EnabledThresholds(stockID)
	if err != nil {
		return 0, false, err
	}
	if len(thresholds) == 0 {
		return 0, false, nil
	}

	min := models.MaxThresholdPct
	for _, t := range thresholds {
		clamped := models.ClampThreshold(t.ThresholdPct)
		if clamped < min {
			min = clamped
		}
	}
	return min, true, nil
}
