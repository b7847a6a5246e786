package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"ohmystock/config"
	"ohmystock/database"
	models "ohmystock/database/models_pkg"
	"ohmystock/providers"
)

type fakeSnapshotStore struct {
	mu       sync.Mutex
	stocks   []models.Stock
	appended []models.PriceSnapshot
	dupAt    map[string]bool
}

func (f *fakeSnapshotStore) TrackedStocks() ([]models.Stock, error) {
	return f.stocks, nil
}

func (f *fakeSnapshotStore) Append(snap *models.PriceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dupAt[snap.StockID.String()] {
		return database.ErrDuplicateSnapshot
	}
	f.appended = append(f.appended, *snap)
	return nil
}

type fakeMarketData struct {
	mu     sync.Mutex
	quotes map[string]*providers.Quote
	errFor map[string]error
	pulls  []string
}

func (f *fakeMarketData) Pull(ctx context.Context, symbol string) (*providers.Quote, error) {
	f.mu.Lock()
	f.pulls = append(f.pulls, symbol)
	f.mu.Unlock()
	if err := f.errFor[symbol]; err != nil {
		return nil, err
	}
	q := f.quotes[symbol]
	if q == nil {
		q = &providers.Quote{Symbol: symbol, Price: 100, ChangePct: 0.5, Volume: 10, Timestamp: time.Now()}
	}
	return q, nil
}

func collectorTestConfig() config.CollectorConfig {
	return config.CollectorConfig{
		Schedule:        "@every 20m",
		Workers:         2,
		MarketHoursOnly: false,
	}
}

func trackedStock(code string) models.Stock {
	return models.Stock{ID: uuid.New(), Code: code, Name: code, Market: "KRX"}
}

func TestRunOnceCollectsAllTrackedStocks(t *testing.T) {
	a, b, c := trackedStock("005930"), trackedStock("000660"), trackedStock("035420")
	store := &fakeSnapshotStore{stocks: []models.Stock{a, b, c}}
	market := &fakeMarketData{}
	detector := NewSpikeDetector(&fakeTriggerStore{})

	collector := NewPriceCollector(store, market, nil, detector, collectorTestConfig())
	collector.RunOnce(context.Background())

	if len(store.appended) != 3 {
		t.Errorf("appended %d snapshots, want 3", len(store.appended))
	}
	if len(market.pulls) != 3 {
		t.Errorf("pulled %d quotes, want 3", len(market.pulls))
	}
}

func TestRunOnceIsolatesProviderFailures(t *testing.T) {
	good, bad := trackedStock("005930"), trackedStock("000660")
	store := &fakeSnapshotStore{stocks: []models.Stock{good, bad}}
	market := &fakeMarketData{
		errFor: map[string]error{"000660": providers.Transient("krx", context.DeadlineExceeded)},
	}
	detector := NewSpikeDetector(&fakeTriggerStore{})

	collector := NewPriceCollector(store, market, nil, detector, collectorTestConfig())
	collector.RunOnce(context.Background())

	if len(store.appended) != 1 {
		t.Fatalf("appended %d snapshots, want 1", len(store.appended))
	}
	if store.appended[0].StockID != good.ID {
		t.Errorf("wrong stock survived the cycle")
	}
}

func TestRunOnceSkipsDuplicateSnapshots(t *testing.T) {
	a, b := trackedStock("005930"), trackedStock("000660")
	store := &fakeSnapshotStore{
		stocks: []models.Stock{a, b},
		dupAt:  map[string]bool{a.ID.String(): true},
	}
	market := &fakeMarketData{}
	detector := NewSpikeDetector(&fakeTriggerStore{})

	collector := NewPriceCollector(store, market, nil, detector, collectorTestConfig())
	collector.RunOnce(context.Background())

	if len(store.appended) != 1 {
		t.Errorf("appended %d snapshots, want 1 (duplicate skipped)", len(store.appended))
	}
}

func TestRunOnceHandsSnapshotsToDetector(t *testing.T) {
	stock := trackedStock("005930")
	store := &fakeSnapshotStore{stocks: []models.Stock{stock}}
	market := &fakeMarketData{
		quotes: map[string]*providers.Quote{
			"005930": {Symbol: "005930", Price: 70000, ChangePct: 5.0, Volume: 1000, Timestamp: time.Now()},
		},
	}
	triggers := &fakeTriggerStore{thresholds: []models.TrackingThreshold{thresholdRow(3.0)}}
	detector := NewSpikeDetector(triggers)

	collector := NewPriceCollector(store, market, nil, detector, collectorTestConfig())
	collector.RunOnce(context.Background())

	if len(triggers.registered) != 1 || triggers.registered[0] != 5.0 {
		t.Errorf("registered triggers = %v, want [5]", triggers.registered)
	}
}
