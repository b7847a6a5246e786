package app

import (
	"context"
	"log"
	"time"

	"ohmystock/providers"
)

// Stage outcome classification. Degraded stages leave their slot of the
// report empty but let the pipeline continue; failed stages abort the run.
type StageStatus int

const (
	StageSuccess StageStatus = iota
	StageDegraded
	StageFailed
)

// stageRetry holds per-stage retry parameters
type stageRetry struct {
	attempts int
	backoff  time.Duration
}

// runWithRetry executes fn with bounded retries on transient errors.
//
// Permanent errors (auth, quota) never retry: the stage degrades immediately.
// Transient errors retry up to the attempt budget with linear backoff, then
// degrade. Context cancellation aborts with StageFailed so the caller can
// distinguish a superseded run from a degraded provider.
func runWithRetry(ctx context.Context, name string, r stageRetry, fn func(context.Context) error) StageStatus {
	attempts := r.attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return StageSuccess
		}

		if ctx.Err() != nil {
			log.Printf("⚠️  Stage %s aborted: %v", name, ctx.Err())
			return StageFailed
		}

		if providers.IsPermanent(err) {
			log.Printf("⚠️  Stage %s degraded (permanent): %v", name, err)
			return StageDegraded
		}

		if attempt < attempts {
			log.Printf("⚠️  Stage %s failed (attempt %d/%d), retrying: %v", name, attempt, attempts, err)
			select {
			case <-ctx.Done():
				return StageFailed
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
			continue
		}

		log.Printf("⚠️  Stage %s degraded after %d attempts: %v", name, attempts, err)
	}
	return StageDegraded
}
