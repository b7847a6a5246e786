package app

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	models "ohmystock/database/models_pkg"
)

type fakeSnapshotSource struct {
	candidates []models.PriceSnapshot
	after      map[time.Time][]models.PriceSnapshot
	gotLow     float64
	gotHigh    float64
	gotBefore  time.Time
}

func (f *fakeSnapshotSource) CandidatesInBand(stockID uuid.UUID, low, high float64, before time.Time) ([]models.PriceSnapshot, error) {
	f.gotLow, f.gotHigh, f.gotBefore = low, high, before
	return f.candidates, nil
}

func (f *fakeSnapshotSource) After(stockID uuid.UUID, event time.Time, limit int) ([]models.PriceSnapshot, error) {
	snaps := f.after[event]
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func snapAt(day int, price, changePct float64, volume int64) models.PriceSnapshot {
	return models.PriceSnapshot{
		Price:      price,
		ChangePct:  changePct,
		Volume:     volume,
		CapturedAt: time.Date(2025, 1, day, 15, 30, 0, 0, time.UTC),
	}
}

func TestSimilarityScore(t *testing.T) {
	tests := []struct {
		name       string
		refChange  float64
		refVolume  int64
		candChange float64
		candVolume int64
		want       float64
	}{
		{"identical case scores zero", 5.0, 1000, 5.0, 1000, 0},
		{"change distance weighted 0.6", 5.0, 1000, 6.0, 1000, 0.6},
		{"volume distance weighted 0.4", 5.0, 1000, 5.0, 1500, 0.2},
		{"zero reference volume ignores volume term", 5.0, 0, 6.0, 999, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := similarityScore(tt.refChange, tt.refVolume, tt.candChange, tt.candVolume)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindSimilarEmptyHistory(t *testing.T) {
	source := &fakeSnapshotSource{}
	engine := NewSimilarityEngine(source)
	engine.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	set, err := engine.FindSimilar(uuid.New(), "2025-06-01", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Cases) != 0 {
		t.Errorf("expected no cases, got %d", len(set.Cases))
	}
	if set.Message == "" {
		t.Errorf("empty result must carry a message")
	}

	// Candidate filter must span the band around the trigger change and
	// exclude the recent window.
	if source.gotLow != 3.5 || source.gotHigh != 6.5 {
		t.Errorf("band = [%v, %v], want [3.5, 6.5]", source.gotLow, source.gotHigh)
	}
	wantCutoff := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	if !source.gotBefore.Equal(wantCutoff) {
		t.Errorf("cutoff = %v, want %v", source.gotBefore, wantCutoff)
	}
}

func TestFindSimilarRankingAndLimit(t *testing.T) {
	candidates := []models.PriceSnapshot{
		snapAt(1, 100, 6.4, 1000),  // score 0.84
		snapAt(5, 100, 5.1, 1000),  // score 0.06, best
		snapAt(10, 100, 5.3, 1000), // score 0.18
		snapAt(15, 100, 5.5, 1000), // score 0.30
		snapAt(20, 100, 5.9, 1000), // score 0.54
	}
	source := &fakeSnapshotSource{candidates: candidates, after: map[time.Time][]models.PriceSnapshot{}}
	engine := NewSimilarityEngine(source)

	set, err := engine.FindSimilar(uuid.New(), "2025-06-01", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Cases) != maxSimilarCases {
		t.Fatalf("expected %d cases, got %d", maxSimilarCases, len(set.Cases))
	}
	for i := 1; i < len(set.Cases); i++ {
		if set.Cases[i].SimilarityScore < set.Cases[i-1].SimilarityScore {
			t.Errorf("cases not sorted by score ascending at index %d", i)
		}
	}
	if set.Cases[0].ChangePct != 5.1 {
		t.Errorf("best case change = %v, want 5.1", set.Cases[0].ChangePct)
	}
}

func TestFindSimilarDedupsNearbyDays(t *testing.T) {
	// Two candidates one day apart; the better scoring one must win.
	candidates := []models.PriceSnapshot{
		snapAt(5, 100, 5.1, 1000), // score 0.06
		snapAt(6, 100, 5.4, 1000), // score 0.24, within dedup window of day 5
		snapAt(20, 100, 5.8, 1000),
	}
	source := &fakeSnapshotSource{candidates: candidates, after: map[time.Time][]models.PriceSnapshot{}}
	engine := NewSimilarityEngine(source)

	set, err := engine.FindSimilar(uuid.New(), "2025-06-01", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Cases) != 2 {
		t.Fatalf("expected 2 cases after dedup, got %d", len(set.Cases))
	}
	for _, c := range set.Cases {
		if c.ChangePct == 5.4 {
			t.Errorf("worse scoring neighbour must be collapsed")
		}
	}
}

func TestFindSimilarExcludesOwnTriggerEvent(t *testing.T) {
	// Recomputing cases for a report months later: the report's own
	// trigger-day snapshot is past the recency cutoff by then and would
	// score a perfect 0.0 against itself. It must never come back as a
	// similar case, nor may its immediate neighbours.
	trigger := snapAt(5, 100, 5.0, 1000)  // the report's own event
	nextDay := snapAt(6, 100, 5.2, 1000)  // within the trigger window
	genuine := snapAt(20, 100, 5.3, 1000) // a real historical case

	source := &fakeSnapshotSource{
		candidates: []models.PriceSnapshot{trigger, nextDay, genuine},
		after:      map[time.Time][]models.PriceSnapshot{},
	}
	engine := NewSimilarityEngine(source)
	engine.now = func() time.Time { return trigger.CapturedAt.AddDate(0, 0, 90) }

	set, err := engine.FindSimilar(uuid.New(), "2025-01-05", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(set.Cases))
	}
	if set.Cases[0].ChangePct != 5.3 {
		t.Errorf("trigger event leaked into its own similar cases: %+v", set.Cases[0])
	}
	if set.Cases[0].SimilarityScore == 0 {
		t.Errorf("a self-match slipped through the trigger-date exclusion")
	}
}

func TestFindSimilarOnlyTriggerEventInBand(t *testing.T) {
	// When the trigger event is the only in-band snapshot the result is the
	// insufficient-history outcome, not a self-match.
	trigger := snapAt(5, 100, 5.0, 1000)
	source := &fakeSnapshotSource{candidates: []models.PriceSnapshot{trigger}}
	engine := NewSimilarityEngine(source)
	engine.now = func() time.Time { return trigger.CapturedAt.AddDate(0, 0, 90) }

	set, err := engine.FindSimilar(uuid.New(), "2025-01-05", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Cases) != 0 {
		t.Fatalf("expected no cases, got %d", len(set.Cases))
	}
	if set.Message == "" {
		t.Errorf("empty result must carry a message")
	}
}

func TestFindSimilarTrajectory(t *testing.T) {
	event := snapAt(5, 100, 5.0, 1000)

	// 30 post-event snapshots climbing from 90 past the event price.
	after := make([]models.PriceSnapshot, 0, 30)
	for i := 0; i < 30; i++ {
		after = append(after, models.PriceSnapshot{
			Price:      90 + float64(i),
			CapturedAt: event.CapturedAt.AddDate(0, 0, i+1),
		})
	}

	source := &fakeSnapshotSource{
		candidates: []models.PriceSnapshot{event},
		after:      map[time.Time][]models.PriceSnapshot{event.CapturedAt: after},
	}
	engine := NewSimilarityEngine(source)

	set, err := engine.FindSimilar(uuid.New(), "2025-06-01", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(set.Cases))
	}
	c := set.Cases[0]

	if len(c.Trend1W) != trend1WPoints {
		t.Errorf("trend_1w has %d points, want %d", len(c.Trend1W), trend1WPoints)
	}
	if len(c.Trend1M) != trend1MPoints {
		t.Errorf("trend_1m has %d points, want %d", len(c.Trend1M), trend1MPoints)
	}
	if c.DataInsufficient {
		t.Errorf("30 post-event snapshots must not be insufficient")
	}

	// Trend is cumulative vs the first post-event price (90).
	if c.Trend1W[0].ChangePct != 0 {
		t.Errorf("first trend point = %v, want 0", c.Trend1W[0].ChangePct)
	}
	wantLast := (94.0 - 90.0) / 90.0 * 100
	if math.Abs(c.Trend1W[4].ChangePct-wantLast) > 1e-9 {
		t.Errorf("last 1w trend point = %v, want %v", c.Trend1W[4].ChangePct, wantLast)
	}

	// Aftermath measures against the event-day price (100).
	if c.Aftermath == nil {
		t.Fatalf("expected aftermath")
	}
	if c.Aftermath.After1WPct == nil || math.Abs(*c.Aftermath.After1WPct-(-6.0)) > 1e-9 {
		t.Errorf("after_1w_pct = %v, want -6", c.Aftermath.After1WPct)
	}
	// Price first reaches 100 at snapshot 11 (90 + 10).
	if c.Aftermath.RecoveryDays == nil || *c.Aftermath.RecoveryDays != 11 {
		t.Errorf("recovery_days = %v, want 11", c.Aftermath.RecoveryDays)
	}
}

func TestFindSimilarInsufficientTrajectory(t *testing.T) {
	event := snapAt(5, 100, 5.0, 1000)
	after := []models.PriceSnapshot{
		{Price: 101, CapturedAt: event.CapturedAt.AddDate(0, 0, 1)},
		{Price: 102, CapturedAt: event.CapturedAt.AddDate(0, 0, 2)},
	}
	source := &fakeSnapshotSource{
		candidates: []models.PriceSnapshot{event},
		after:      map[time.Time][]models.PriceSnapshot{event.CapturedAt: after},
	}
	engine := NewSimilarityEngine(source)

	set, err := engine.FindSimilar(uuid.New(), "2025-06-01", 5.0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := set.Cases[0]
	if !c.DataInsufficient {
		t.Errorf("2 post-event snapshots must flag data_insufficient")
	}
	if len(c.Trend1W) != 2 {
		t.Errorf("trend_1w has %d points, want 2", len(c.Trend1W))
	}
	if c.Aftermath == nil || c.Aftermath.After1WPct != nil {
		t.Errorf("after_1w_pct must be nil with only 2 snapshots")
	}
	if c.Aftermath.RecoveryDays == nil || *c.Aftermath.RecoveryDays != 1 {
		t.Errorf("recovery_days = %v, want 1", c.Aftermath.RecoveryDays)
	}
}
