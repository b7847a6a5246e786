package cache

import (
	"context"
	"fmt"
	"time"

	"ohmystock/providers"
)

// PriceCacheTTL bounds how long a cached quote is served before the display
// API falls back to the database.
const PriceCacheTTL = 5 * time.Minute

// PriceCache keeps the latest collected quote per stock in Redis so display
// readers avoid hitting the snapshot table on every request. Best-effort:
// every method degrades to a no-op/miss without Redis.
type PriceCache struct {
	redis *RedisClient
}

// NewPriceCache creates a new price cache instance
func NewPriceCache(redis *RedisClient) *PriceCache {
	return &PriceCache{redis: redis}
}

// SetLatest caches the latest quote for a stock
func (c *PriceCache) SetLatest(ctx context.Context, stockID string, quote *providers.Quote) error {
	if c.redis == nil {
		return nil
	}
	key := fmt.Sprintf("price:%s", stockID)
	return c.redis.Set(ctx, key, quote, PriceCacheTTL)
}

// GetLatest retrieves the cached quote for a stock.
// Returns the quote and true on a hit, nil and false otherwise.
func (c *PriceCache) GetLatest(ctx context.Context, stockID string) (*providers.Quote, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := fmt.Sprintf("price:%s", stockID)
	var quote providers.Quote
	if err := c.redis.Get(ctx, key, &quote); err != nil {
		return nil, false
	}
	return &quote, true
}
