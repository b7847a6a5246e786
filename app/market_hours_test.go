package app

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday mid-session", time.Date(2025, 6, 2, 11, 0, 0, 0, kst), true},
		{"opening bell", time.Date(2025, 6, 2, 9, 0, 0, 0, kst), true},
		{"closing minute", time.Date(2025, 6, 2, 15, 30, 0, 0, kst), true},
		{"before open", time.Date(2025, 6, 2, 8, 59, 0, 0, kst), false},
		{"after close", time.Date(2025, 6, 2, 15, 31, 0, 0, kst), false},
		{"saturday", time.Date(2025, 6, 7, 11, 0, 0, 0, kst), false},
		{"sunday", time.Date(2025, 6, 8, 11, 0, 0, 0, kst), false},
		{"utc morning is kst session", time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarketOpen(tt.at); got != tt.want {
				t.Errorf("IsMarketOpen(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestTradingDate(t *testing.T) {
	// 23:30 UTC on June 1 is already June 2 in Seoul.
	at := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	if got := TradingDate(at); got != "2025-06-02" {
		t.Errorf("TradingDate = %s, want 2025-06-02", got)
	}
}
