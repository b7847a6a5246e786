package helpers

import (
	"fmt"
	"time"
)

// FormatKRW formats a number as Korean Won currency
func FormatKRW(amount float64) string {
	// Convert to integer for formatting
	value := int64(amount)

	// Handle negative numbers
	negative := value < 0
	if negative {
		value = -value
	}

	// Convert to string and add thousand separators
	str := fmt.Sprintf("%d", value)
	length := len(str)

	if length <= 3 {
		if negative {
			return fmt.Sprintf("₩-%s", str)
		}
		return fmt.Sprintf("₩%s", str)
	}

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("₩-%s", result)
	}
	return fmt.Sprintf("₩%s", result)
}

// FormatSignedPct formats a percentage with an explicit sign, e.g. "+3.4%"
func FormatSignedPct(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

// Freshness levels for the latest snapshot of a stock
const (
	FreshnessFresh     = "fresh"      // within 30 minutes
	FreshnessStale     = "stale"      // within 3 hours
	FreshnessVeryStale = "very_stale" // older than 3 hours
	FreshnessUnknown   = "unknown"    // no snapshot observed
)

// Freshness classifies how stale the latest snapshot is relative to now
func Freshness(capturedAt, now time.Time) string {
	if capturedAt.IsZero() {
		return FreshnessUnknown
	}
	age := now.Sub(capturedAt)
	switch {
	case age <= 30*time.Minute:
		return FreshnessFresh
	case age <= 3*time.Hour:
		return FreshnessStale
	default:
		return FreshnessVeryStale
	}
}
