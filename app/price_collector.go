package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ohmystock/cache"
	"ohmystock/config"
	"ohmystock/database"
	models "ohmystock/database/models_pkg"
	"ohmystock/providers"
)

// SnapshotStore is the append-only snapshot storage the collector writes to
type SnapshotStore interface {
	TrackedStocks() ([]models.Stock, error)
	Append(snap *models.PriceSnapshot) error
}

// PriceCollector polls the market data provider for every tracked stock and
// appends immutable snapshots. Each fresh snapshot is handed to the spike
// detector; duplicate appends (same capture timestamp) are skipped silently.
type PriceCollector struct {
	snaps           SnapshotStore
	provider        providers.MarketDataProvider
	priceCache      *cache.PriceCache
	detector        *SpikeDetector
	workers         int
	marketHoursOnly bool
}

// NewPriceCollector creates a price snapshot collector
func NewPriceCollector(snaps SnapshotStore, provider providers.MarketDataProvider,
	priceCache *cache.PriceCache, detector *SpikeDetector, cfg config.CollectorConfig) *PriceCollector {

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &PriceCollector{
		snaps:           snaps,
		provider:        provider,
		priceCache:      priceCache,
		detector:        detector,
		workers:         workers,
		marketHoursOnly: cfg.MarketHoursOnly,
	}
}

// RunOnce executes one collection cycle over all tracked stocks
func (c *PriceCollector) RunOnce(ctx context.Context) {
	if c.marketHoursOnly && !IsMarketOpen(time.Now()) {
		log.Println("ℹ️  Market closed, skipping collection cycle")
		return
	}

	stocks, err := c.snaps.TrackedStocks()
	if err != nil {
		log.Printf("⚠️  Failed to list tracked stocks: %v", err)
		return
	}
	if len(stocks) == 0 {
		return
	}

	start := time.Now()
	var collected, skipped, failed, triggered atomic.Int64

	jobs := make(chan models.Stock)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stock := range jobs {
				switch c.collectOne(ctx, &stock) {
				case collectOK:
					collected.Add(1)
				case collectDuplicate:
					skipped.Add(1)
				case collectTriggered:
					collected.Add(1)
					triggered.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}

	for _, stock := range stocks {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- stock:
		}
	}
	close(jobs)
	wg.Wait()

	log.Printf("📊 Collection cycle: %d stocks, %d collected, %d duplicates, %d failed, %d triggers (%v)",
		len(stocks), collected.Load(), skipped.Load(), failed.Load(), triggered.Load(), time.Since(start))
}

type collectOutcome int

const (
	collectOK collectOutcome = iota
	collectDuplicate
	collectTriggered
	collectFailed
)

func (c *PriceCollector) collectOne(ctx context.Context, stock *models.Stock) collectOutcome {
	quote, err := c.provider.Pull(ctx, stock.Code)
	if err != nil {
		log.Printf("⚠️  Quote pull failed for %s: %v", stock.Code, err)
		return collectFailed
	}

	snap := &models.PriceSnapshot{
		StockID:    stock.ID,
		Price:      quote.Price,
		ChangePct:  quote.ChangePct,
		Volume:     quote.Volume,
		CapturedAt: quote.Timestamp,
	}
	if err := c.snaps.Append(snap); err != nil {
		if errors.Is(err, database.ErrDuplicateSnapshot) {
			return collectDuplicate
		}
		log.Printf("⚠️  Snapshot append failed for %s: %v", stock.Code, err)
		return collectFailed
	}

	if c.priceCache != nil {
		if err := c.priceCache.SetLatest(ctx, stock.ID.String(), quote); err != nil {
			// Cache is best effort; the snapshot is already durable.
			log.Printf("⚠️  Price cache write failed for %s: %v", stock.Code, err)
		}
	}

	report, err := c.detector.Evaluate(stock, snap)
	if err != nil {
		log.Printf("⚠️  Spike evaluation failed for %s: %v", stock.Code, err)
		return collectOK
	}
	if report != nil {
		return collectTriggered
	}
	return collectOK
}
