package helpers

import (
	"testing"
	"time"
)

func TestFormatKRW(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   string
	}{
		{"small value", 500, "₩500"},
		{"thousands", 70000, "₩70,000"},
		{"millions", 1234567, "₩1,234,567"},
		{"negative", -70000, "₩-70,000"},
		{"fraction truncated", 999.99, "₩999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatKRW(tt.amount); got != tt.want {
				t.Errorf("FormatKRW(%v) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestFormatSignedPct(t *testing.T) {
	if got := FormatSignedPct(5.25); got != "+5.2%" {
		t.Errorf("FormatSignedPct(5.25) = %s", got)
	}
	if got := FormatSignedPct(-3.0); got != "-3.0%" {
		t.Errorf("FormatSignedPct(-3.0) = %s", got)
	}
}

func TestFreshness(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want string
	}{
		{"just collected", 5 * time.Minute, FreshnessFresh},
		{"fresh boundary", 30 * time.Minute, FreshnessFresh},
		{"stale", 2 * time.Hour, FreshnessStale},
		{"stale boundary", 3 * time.Hour, FreshnessStale},
		{"very stale", 26 * time.Hour, FreshnessVeryStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Freshness(now.Add(-tt.age), now); got != tt.want {
				t.Errorf("Freshness(age %v) = %s, want %s", tt.age, got, tt.want)
			}
		})
	}

	if got := Freshness(time.Time{}, now); got != FreshnessUnknown {
		t.Errorf("zero time = %s, want unknown", got)
	}
}
