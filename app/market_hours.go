package app

import (
	"time"
)

// KRX regular session, KST
const (
	marketOpenHour  = 9
	marketOpenMin   = 0
	marketCloseHour = 15
	marketCloseMin  = 30
)

var seoulLocation = mustLoadSeoul()

func mustLoadSeoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		// Container images without tzdata fall back to a fixed offset. KST
		// has no daylight saving so the offset is always correct.
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// IsMarketOpen reports whether the KRX regular session is open at t.
// Weekends are closed; exchange holidays are not modelled, those cycles
// simply collect unchanged quotes.
func IsMarketOpen(t time.Time) bool {
	kst := t.In(seoulLocation)

	switch kst.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := kst.Hour()*60 + kst.Minute()
	open := marketOpenHour*60 + marketOpenMin
	close := marketCloseHour*60 + marketCloseMin
	return minutes >= open && minutes <= close
}

// TradingDate returns the KST calendar date of t as YYYY-MM-DD. Report
// idempotency keys on this value.
func TradingDate(t time.Time) string {
	return t.In(seoulLocation).Format("2006-01-02")
}
