package app

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	models "ohmystock/database/models_pkg"
	"ohmystock/database/types"
)

// Similarity search parameters.
//
// Candidates must fall within candidateBandPct of the trigger's change, lie
// at least recentExclusionDays in the past, and sit outside dedupWindowDays
// of the trigger date itself, so a move never matches its own event or
// run-up. Nearby candidates within dedupWindowDays of each other collapse to
// the better-scoring one.
const (
	candidateBandPct    = 1.5
	recentExclusionDays = 30
	dedupWindowDays     = 2
	maxSimilarCases     = 3

	weightChangeDiff = 0.6
	weightVolumeDiff = 0.4

	trend1WPoints   = 5
	trend1MPoints   = 20
	aftermathPoints = 30
)

// SnapshotSource is the snapshot history the similarity engine reads
type SnapshotSource interface {
	CandidatesInBand(stockID uuid.UUID, low, high float64, before time.Time) ([]models.PriceSnapshot, error)
	After(stockID uuid.UUID, event time.Time, limit int) ([]models.PriceSnapshot, error)
}

// SimilarityEngine finds historical price moves comparable to a trigger and
// reconstructs what happened after each of them. Results are derived from
// snapshot history on demand and never persisted.
type SimilarityEngine struct {
	snaps SnapshotSource
	now   func() time.Time
}

// NewSimilarityEngine creates a similarity engine over snapshot history
func NewSimilarityEngine(snaps SnapshotSource) *SimilarityEngine {
	return &SimilarityEngine{snaps: snaps, now: time.Now}
}

// FindSimilar returns up to maxSimilarCases historical cases for a trigger,
// most similar first. triggerDate is the trigger's YYYY-MM-DD date key;
// snapshots within dedupWindowDays of it are excluded so a stored report
// recomputed long after the fact never matches its own trigger event.
// An empty result with a message is a valid outcome, not an error: a newly
// listed stock simply has no comparable history yet.
func (e *SimilarityEngine) FindSimilar(stockID uuid.UUID, triggerDate string, triggerChangePct float64, triggerVolume int64) (*types.SimilarCaseSet, error) {
	cutoff := e.now().AddDate(0, 0, -recentExclusionDays)
	triggerDay, _ := time.Parse("2006-01-02", triggerDate)

	low := triggerChangePct - candidateBandPct
	high := triggerChangePct + candidateBandPct
	found, err := e.snaps.CandidatesInBand(stockID, low, high, cutoff)
	if err != nil {
		return nil, fmt.Errorf("similar case candidates: %w", err)
	}

	candidates := make([]models.PriceSnapshot, 0, len(found))
	for _, cand := range found {
		if !triggerDay.IsZero() && dayGap(cand.CapturedAt, triggerDay) <= dedupWindowDays {
			continue
		}
		candidates = append(candidates, cand)
	}

	if len(candidates) == 0 {
		return &types.SimilarCaseSet{
			Cases:   []types.SimilarCase{},
			Message: "insufficient history: no comparable past moves found",
		}, nil
	}

	scored := make([]scoredCase, 0, len(candidates))
	for _, cand := range candidates {
		scored = append(scored, scoredCase{
			eventPrice: cand.Price,
			c: types.SimilarCase{
				Date:            cand.CapturedAt,
				ChangePct:       cand.ChangePct,
				Volume:          cand.Volume,
				SimilarityScore: similarityScore(triggerChangePct, triggerVolume, cand.ChangePct, cand.Volume),
			},
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].c.SimilarityScore < scored[j].c.SimilarityScore
	})

	deduped := dedupNearbyCases(scored)
	if len(deduped) > maxSimilarCases {
		deduped = deduped[:maxSimilarCases]
	}

	cases := make([]types.SimilarCase, 0, len(deduped))
	for _, sc := range deduped {
		if err := e.attachTrajectory(stockID, &sc.c, sc.eventPrice); err != nil {
			return nil, err
		}
		cases = append(cases, sc.c)
	}

	return &types.SimilarCaseSet{Cases: cases}, nil
}

// scoredCase pairs a candidate with its event-day snapshot price, which the
// aftermath calculation measures recovery against.
type scoredCase struct {
	eventPrice float64
	c          types.SimilarCase
}

// similarityScore is a weighted distance over change magnitude and volume
// ratio. Lower means more similar. A zero reference volume disables the
// volume term rather than dividing by it.
func similarityScore(refChange float64, refVolume int64, candChange float64, candVolume int64) float64 {
	changeDiff := math.Abs(candChange - refChange)

	volumeDiff := 0.0
	if refVolume > 0 {
		volumeDiff = math.Abs(1 - float64(candVolume)/float64(refVolume))
	}

	return weightChangeDiff*changeDiff + weightVolumeDiff*volumeDiff
}

// dedupNearbyCases collapses cases whose dates fall within dedupWindowDays of
// an already kept (better scoring) case. Input must be sorted by score.
func dedupNearbyCases(sorted []scoredCase) []scoredCase {
	kept := make([]scoredCase, 0, len(sorted))
	window := time.Duration(dedupWindowDays) * 24 * time.Hour

	for _, sc := range sorted {
		tooClose := false
		for _, k := range kept {
			gap := sc.c.Date.Sub(k.c.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap <= window {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kept = append(kept, sc)
		}
	}
	return kept
}

// dayGap returns the absolute calendar-day distance between two instants,
// ignoring the time of day.
func dayGap(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	gap := int(time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).
		Sub(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)).Hours() / 24)
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// attachTrajectory fills in the post-event trend and aftermath of a case from
// the snapshots captured after its date.
func (e *SimilarityEngine) attachTrajectory(stockID uuid.UUID, c *types.SimilarCase, eventPrice float64) error {
	after, err := e.snaps.After(stockID, c.Date, aftermathPoints)
	if err != nil {
		return fmt.Errorf("similar case trajectory: %w", err)
	}

	c.Trend1W = trendPoints(after, trend1WPoints)
	c.Trend1M = trendPoints(after, trend1MPoints)
	c.DataInsufficient = len(after) < trend1WPoints
	c.Aftermath = buildAftermath(after, eventPrice)
	return nil
}

// trendPoints builds a cumulative-return series over the first n post-event
// snapshots, relative to the first one.
func trendPoints(after []models.PriceSnapshot, n int) []types.TrendPoint {
	if len(after) == 0 {
		return []types.TrendPoint{}
	}
	if n > len(after) {
		n = len(after)
	}

	base := after[0].Price
	points := make([]types.TrendPoint, 0, n)
	for i := 0; i < n; i++ {
		pct := 0.0
		if base > 0 {
			pct = (after[i].Price - base) / base * 100
		}
		points = append(points, types.TrendPoint{Day: i + 1, ChangePct: pct})
	}
	return points
}

// buildAftermath computes 1w/1m returns and recovery against the reference
// price. With no usable reference the first post-event price anchors it.
func buildAftermath(after []models.PriceSnapshot, refPrice float64) *types.CaseAftermath {
	if len(after) == 0 {
		return nil
	}
	if refPrice <= 0 {
		refPrice = after[0].Price
	}
	if refPrice <= 0 {
		return nil
	}

	am := &types.CaseAftermath{}

	if len(after) >= trend1WPoints {
		pct := (after[trend1WPoints-1].Price - refPrice) / refPrice * 100
		am.After1WPct = &pct
	}
	if len(after) >= trend1MPoints {
		pct := (after[trend1MPoints-1].Price - refPrice) / refPrice * 100
		am.After1MPct = &pct
	}

	for i, snap := range after {
		if snap.Price >= refPrice {
			days := i + 1
			am.RecoveryDays = &days
			break
		}
	}

	return am
}
