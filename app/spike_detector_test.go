package app

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"ohmystock/database"
	models "ohmystock/database/models_pkg"
)

type fakeTriggerStore struct {
	thresholds []models.TrackingThreshold
	registered []float64
	nextGen    int
	regErr     error
}

func (f *fakeTriggerStore) EnabledThresholds(stockID uuid.UUID) ([]models.TrackingThreshold, error) {
	return f.thresholds, nil
}

func (f *fakeTriggerStore) RegisterTrigger(stockID uuid.UUID, triggerDate string, price, changePct float64, volume int64) (*models.Report, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	f.registered = append(f.registered, changePct)
	gen := f.nextGen
	if gen == 0 {
		gen = 1
	}
	return &models.Report{
		ID:               uuid.New(),
		StockID:          stockID,
		TriggerDate:      triggerDate,
		TriggerChangePct: changePct,
		Generation:       gen,
		Status:           models.ReportStatusPending,
	}, nil
}

type fakeCanceller struct {
	calls int
}

func (f *fakeCanceller) Cancel(stockID uuid.UUID, triggerDate string) {
	f.calls++
}

func thresholdRow(pct float64) models.TrackingThreshold {
	return models.TrackingThreshold{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		StockID:      uuid.New(),
		ThresholdPct: pct,
		AlertEnabled: true,
	}
}

func TestEvaluateThresholds(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930", Name: "Samsung Electronics"}

	tests := []struct {
		name       string
		thresholds []models.TrackingThreshold
		changePct  float64
		wantFire   bool
	}{
		{
			name:       "above single threshold",
			thresholds: []models.TrackingThreshold{thresholdRow(3.0)},
			changePct:  3.5,
			wantFire:   true,
		},
		{
			name:       "below threshold",
			thresholds: []models.TrackingThreshold{thresholdRow(3.0)},
			changePct:  2.9,
			wantFire:   false,
		},
		{
			name:       "negative move uses absolute change",
			thresholds: []models.TrackingThreshold{thresholdRow(3.0)},
			changePct:  -4.2,
			wantFire:   true,
		},
		{
			name:       "most sensitive subscriber wins",
			thresholds: []models.TrackingThreshold{thresholdRow(5.0), thresholdRow(2.0)},
			changePct:  2.5,
			wantFire:   true,
		},
		{
			name:       "out-of-range threshold clamps to 10",
			thresholds: []models.TrackingThreshold{thresholdRow(12.0)},
			changePct:  9.0,
			wantFire:   false,
		},
		{
			name:       "threshold snaps to half-percent step",
			thresholds: []models.TrackingThreshold{thresholdRow(1.3)},
			changePct:  1.4,
			wantFire:   false, // 1.3 clamps to 1.5
		},
		{
			name:       "no subscribers",
			thresholds: nil,
			changePct:  9.9,
			wantFire:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeTriggerStore{thresholds: tt.thresholds}
			detector := NewSpikeDetector(store)

			snap := &models.PriceSnapshot{
				StockID:    stock.ID,
				Price:      70000,
				ChangePct:  tt.changePct,
				Volume:     1000,
				CapturedAt: time.Now(),
			}
			report, err := detector.Evaluate(stock, snap)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (report != nil) != tt.wantFire {
				t.Errorf("fired=%v, want %v", report != nil, tt.wantFire)
			}
		})
	}
}

func TestEvaluateDuplicateTriggerSilent(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930"}
	store := &fakeTriggerStore{
		thresholds: []models.TrackingThreshold{thresholdRow(3.0)},
		regErr:     database.ErrDuplicateTrigger,
	}
	detector := NewSpikeDetector(store)

	snap := &models.PriceSnapshot{StockID: stock.ID, ChangePct: 4.0, CapturedAt: time.Now()}
	report, err := detector.Evaluate(stock, snap)
	if err != nil {
		t.Fatalf("duplicate trigger must not surface as error, got %v", err)
	}
	if report != nil {
		t.Errorf("duplicate trigger must not return a report")
	}
}

func TestEvaluateSupersedeCancelsInflightRun(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930"}
	store := &fakeTriggerStore{
		thresholds: []models.TrackingThreshold{thresholdRow(3.0)},
		nextGen:    2,
	}
	canceller := &fakeCanceller{}
	detector := NewSpikeDetector(store)
	detector.SetCanceller(canceller)

	snap := &models.PriceSnapshot{StockID: stock.ID, ChangePct: 6.0, CapturedAt: time.Now()}
	report, err := detector.Evaluate(stock, snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil || report.Generation != 2 {
		t.Fatalf("expected generation 2 report, got %+v", report)
	}
	if canceller.calls != 1 {
		t.Errorf("expected 1 cancel call, got %d", canceller.calls)
	}
}
