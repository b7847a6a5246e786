// Package providers wraps the external data services the pipeline depends
// on behind narrow interfaces returning typed results or typed errors.
// Raw provider payloads never leave this package.
package providers

import (
	"context"
	"time"
)

// Quote is one market data observation for a symbol
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextItem is one news or disclosure item retrieved for a stock
type ContextItem struct {
	SourceType  string     `json:"source_type"` // news, disclosure, market_data
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// MarketDataProvider pulls the latest quote for a symbol
type MarketDataProvider interface {
	Pull(ctx context.Context, symbol string) (*Quote, error)
}

// ContextProvider fetches recent news/disclosure items for a symbol within
// a lookback window. An empty result is a valid, non-error outcome.
type ContextProvider interface {
	Name() string
	Fetch(ctx context.Context, symbol string, window time.Duration) ([]ContextItem, error)
}
