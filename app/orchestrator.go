package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ohmystock/config"
	"ohmystock/database"
	models "ohmystock/database/models_pkg"
	"ohmystock/database/types"
	"ohmystock/llm"
	"ohmystock/providers"
)

// PipelineStore is the report persistence surface the orchestrator drives.
// Every mutation is generation-guarded; database.ErrStaleGeneration means a
// stronger same-day trigger superseded this run and its result is discarded.
type PipelineStore interface {
	Pending(limit int) ([]models.Report, error)
	MarkGenerating(id uuid.UUID, generation int) error
	ReplaceSources(id uuid.UUID, generation int, sources []models.ReportSource) error
	Complete(id uuid.UUID, generation int, summary string, analysis []byte) error
	Fail(id uuid.UUID, generation int, reason string) error
	StockByID(id uuid.UUID) (*models.Stock, error)
}

// SimilarFinder produces historical cases comparable to a trigger
type SimilarFinder interface {
	FindSimilar(stockID uuid.UUID, triggerDate string, triggerChangePct float64, triggerVolume int64) (*types.SimilarCaseSet, error)
}

// AnalysisSynthesizer turns enrichment results into an analysis document
type AnalysisSynthesizer interface {
	Synthesize(ctx context.Context, in llm.SynthesisInput) (*types.AnalysisDocument, error)
}

// EventSink receives terminal report events for fan-out
type EventSink interface {
	ReportCompleted(report *models.Report, stock *models.Stock)
	ReportFailed(report *models.Report, stock *models.Stock)
}

// Orchestrator drains pending reports and drives each through the
// enrichment and synthesis stages.
//
// Context gathering and similarity search run concurrently per report and
// join at a barrier before synthesis. Provider failures degrade their slot;
// only reasoning unavailability or a fully empty enrichment fails a report.
type Orchestrator struct {
	store    PipelineStore
	ctxProv  []providers.ContextProvider
	similar  SimilarFinder
	sector   *SectorImpactBuilder
	synth    AnalysisSynthesizer
	events   EventSink
	llmOn    bool

	pollInterval  time.Duration
	stageTimeout  time.Duration
	reportTimeout time.Duration
	retry         stageRetry
	contextWindow time.Duration

	sem  chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*runHandle

	processed  atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	superseded atomic.Int64
}

// NewOrchestrator creates the report pipeline orchestrator
func NewOrchestrator(store PipelineStore, ctxProv []providers.ContextProvider, similar SimilarFinder,
	sector *SectorImpactBuilder, synth AnalysisSynthesizer, events EventSink, llmOn bool,
	cfg config.PipelineConfig) *Orchestrator {

	return &Orchestrator{
		store:   store,
		ctxProv: ctxProv,
		similar: similar,
		sector:  sector,
		synth:   synth,
		events:  events,
		llmOn:   llmOn,

		pollInterval:  time.Duration(cfg.PollIntervalSeconds) * time.Second,
		stageTimeout:  time.Duration(cfg.StageTimeoutSeconds) * time.Second,
		reportTimeout: time.Duration(cfg.ReportTimeoutSeconds) * time.Second,
		retry: stageRetry{
			attempts: cfg.StageAttempts,
			backoff:  time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		},
		contextWindow: time.Duration(cfg.ContextWindowHours) * time.Hour,

		sem:      make(chan struct{}, cfg.MaxConcurrentReports),
		done:     make(chan struct{}),
		inflight: make(map[string]*runHandle),
	}
}

// Start launches the pending-report poll loop
func (o *Orchestrator) Start() {
	log.Printf("🚀 Report orchestrator started (poll %v, %d concurrent)", o.pollInterval, cap(o.sem))
	o.wg.Add(1)
	go o.run()
}

// Stop stops polling and waits for in-flight reports to finish
func (o *Orchestrator) Stop() {
	close(o.done)
	o.wg.Wait()
}

// Stats returns pipeline counters since process start
func (o *Orchestrator) Stats() (processed, completed, failed, superseded int64) {
	return o.processed.Load(), o.completed.Load(), o.failed.Load(), o.superseded.Load()
}

// Cancel aborts the in-flight run for a (stock, trigger date) pair. Called
// by the detector when a stronger same-day trigger supersedes the run.
func (o *Orchestrator) Cancel(stockID uuid.UUID, triggerDate string) {
	key := runKey(stockID, triggerDate)
	o.mu.Lock()
	run, ok := o.inflight[key]
	if ok {
		delete(o.inflight, key)
	}
	o.mu.Unlock()
	if ok {
		log.Printf("🔄 Cancelling superseded run %s", key)
		run.cancel()
	}
}

// runHandle identifies one in-flight report run; registry cleanup only
// removes the entry it registered.
type runHandle struct {
	cancel context.CancelFunc
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.processPending()
	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			o.processPending()
		}
	}
}

func (o *Orchestrator) processPending() {
	pending, err := o.store.Pending(cap(o.sem) * 2)
	if err != nil {
		log.Printf("⚠️  Failed to poll pending reports: %v", err)
		return
	}

	for _, report := range pending {
		select {
		case <-o.done:
			return
		case o.sem <- struct{}{}:
		}

		o.wg.Add(1)
		go func(rep models.Report) {
			defer o.wg.Done()
			defer func() { <-o.sem }()
			o.processReport(rep)
		}(report)
	}
}

func (o *Orchestrator) processReport(rep models.Report) {
	o.processed.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), o.reportTimeout)
	defer cancel()

	key := runKey(rep.StockID, rep.TriggerDate)
	handle := &runHandle{cancel: cancel}
	o.mu.Lock()
	if prev, ok := o.inflight[key]; ok {
		// A lower-generation run for the same day is still registered.
		prev.cancel()
	}
	o.inflight[key] = handle
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		if current, ok := o.inflight[key]; ok && current == handle {
			delete(o.inflight, key)
		}
		o.mu.Unlock()
	}()

	if err := o.store.MarkGenerating(rep.ID, rep.Generation); err != nil {
		if errors.Is(err, database.ErrStaleGeneration) {
			o.superseded.Add(1)
			return
		}
		log.Printf("⚠️  Failed to claim report %s: %v", rep.ID, err)
		return
	}

	stock, err := o.store.StockByID(rep.StockID)
	if err != nil {
		log.Printf("⚠️  Unknown stock on report %s: %v", rep.ID, err)
		o.failReport(&rep, nil, database.FailReasonNoContext)
		return
	}

	log.Printf("📝 Generating report for %s %s (%+.1f%%, gen %d)",
		stock.Code, rep.TriggerDate, rep.TriggerChangePct, rep.Generation)

	// Context gathering and similarity search are independent; run both and
	// join before synthesis.
	var (
		wg         sync.WaitGroup
		sources    []models.ReportSource
		items      []providers.ContextItem
		anyContext bool
		simSet     *types.SimilarCaseSet
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sources, items, anyContext = o.gatherContext(ctx, stock)
	}()
	go func() {
		defer wg.Done()
		simSet = o.findSimilar(&rep, stock)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		o.abortedReport(&rep, stock)
		return
	}

	if err := o.store.ReplaceSources(rep.ID, rep.Generation, sources); err != nil {
		if errors.Is(err, database.ErrStaleGeneration) {
			o.superseded.Add(1)
			return
		}
		log.Printf("⚠️  Failed to store sources for report %s: %v", rep.ID, err)
		o.failReport(&rep, stock, database.FailReasonNoContext)
		return
	}

	// A report with no successful enrichment at all has nothing to reason
	// over. Empty-but-successful stages are fine; the prompt says so.
	if !anyContext && len(simSet.Cases) == 0 && simSet.Message == "" {
		o.failReport(&rep, stock, database.FailReasonNoContext)
		return
	}

	if !o.llmOn {
		log.Printf("ℹ️  Reasoning disabled, failing report %s", rep.ID)
		o.failReport(&rep, stock, database.FailReasonReasoningUnavailable)
		return
	}

	var sectorImpact *types.SectorImpact
	if o.sector != nil {
		sectorImpact, err = o.sector.Build(stock)
		if err != nil {
			log.Printf("⚠️  Sector impact unavailable for %s: %v", stock.Code, err)
			sectorImpact = nil
		}
	}

	doc, err := o.synth.Synthesize(ctx, llm.SynthesisInput{
		StockName:        stock.Name,
		StockCode:        stock.Code,
		TriggerChangePct: rep.TriggerChangePct,
		Sources:          items,
		SimilarCases:     simSet.Cases,
		SectorImpact:     sectorImpact,
	})
	if err != nil {
		if ctx.Err() != nil {
			o.abortedReport(&rep, stock)
			return
		}
		log.Printf("⚠️  Synthesis failed for report %s: %v", rep.ID, err)
		o.failReport(&rep, stock, database.FailReasonReasoningUnavailable)
		return
	}

	raw, err := types.EncodeAnalysis(doc)
	if err != nil {
		log.Printf("⚠️  Failed to encode analysis for report %s: %v", rep.ID, err)
		o.failReport(&rep, stock, database.FailReasonReasoningUnavailable)
		return
	}

	if err := o.store.Complete(rep.ID, rep.Generation, doc.Summary, raw); err != nil {
		if errors.Is(err, database.ErrStaleGeneration) {
			o.superseded.Add(1)
			return
		}
		log.Printf("⚠️  Failed to complete report %s: %v", rep.ID, err)
		return
	}

	o.completed.Add(1)
	log.Printf("✅ Report completed for %s %s", stock.Code, rep.TriggerDate)

	now := time.Now()
	rep.Status = models.ReportStatusCompleted
	rep.Summary = doc.Summary
	rep.Analysis = raw
	rep.CompletedAt = &now
	if o.events != nil {
		o.events.ReportCompleted(&rep, stock)
	}
}

// gatherContext pulls news and disclosure items from every provider, each
// isolated with its own timeout and retry budget. anyContext reports whether
// at least one provider answered successfully.
func (o *Orchestrator) gatherContext(ctx context.Context, stock *models.Stock) ([]models.ReportSource, []providers.ContextItem, bool) {
	window := o.contextWindow

	var (
		mu       sync.Mutex
		items    []providers.ContextItem
		anyOK    bool
		provWait sync.WaitGroup
	)

	for _, prov := range o.ctxProv {
		provWait.Add(1)
		go func(p providers.ContextProvider) {
			defer provWait.Done()

			var fetched []providers.ContextItem
			status := runWithRetry(ctx, p.Name(), o.retry, func(ctx context.Context) error {
				stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
				defer cancel()

				got, err := p.Fetch(stageCtx, stock.Code, window)
				if err != nil {
					return err
				}
				fetched = got
				return nil
			})

			if status == StageSuccess {
				mu.Lock()
				items = append(items, fetched...)
				anyOK = true
				mu.Unlock()
			}
		}(prov)
	}
	provWait.Wait()

	sources := make([]models.ReportSource, 0, len(items))
	for _, item := range items {
		sources = append(sources, models.ReportSource{
			SourceType:  item.SourceType,
			Title:       item.Title,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
		})
	}
	return sources, items, anyOK
}

// findSimilar runs the similarity search. Failures degrade to an empty set;
// history lookups never fail a report on their own.
func (o *Orchestrator) findSimilar(rep *models.Report, stock *models.Stock) *types.SimilarCaseSet {
	set, err := o.similar.FindSimilar(rep.StockID, rep.TriggerDate, rep.TriggerChangePct, rep.TriggerVolume)
	if err != nil {
		log.Printf("⚠️  Similar case search degraded for %s: %v", stock.Code, err)
		return &types.SimilarCaseSet{Cases: []types.SimilarCase{}}
	}
	if set == nil {
		return &types.SimilarCaseSet{Cases: []types.SimilarCase{}}
	}
	return set
}

// abortedReport handles a run whose context ended. A superseding trigger has
// already failed the row, so the guarded Fail write telling "timeout" only
// lands when the run genuinely ran out of time.
func (o *Orchestrator) abortedReport(rep *models.Report, stock *models.Stock) {
	err := o.store.Fail(rep.ID, rep.Generation, database.FailReasonTimeout)
	if errors.Is(err, database.ErrStaleGeneration) {
		o.superseded.Add(1)
		return
	}
	if err != nil {
		log.Printf("⚠️  Failed to fail report %s: %v", rep.ID, err)
		return
	}
	o.failed.Add(1)
	o.dispatchFailed(rep, stock, database.FailReasonTimeout)
}

func (o *Orchestrator) failReport(rep *models.Report, stock *models.Stock, reason string) {
	err := o.store.Fail(rep.ID, rep.Generation, reason)
	if errors.Is(err, database.ErrStaleGeneration) {
		o.superseded.Add(1)
		return
	}
	if err != nil {
		log.Printf("⚠️  Failed to fail report %s: %v", rep.ID, err)
		return
	}
	o.failed.Add(1)
	o.dispatchFailed(rep, stock, reason)
}

func (o *Orchestrator) dispatchFailed(rep *models.Report, stock *models.Stock, reason string) {
	if o.events == nil || stock == nil {
		return
	}
	now := time.Now()
	rep.Status = models.ReportStatusFailed
	rep.FailReason = reason
	rep.CompletedAt = &now
	o.events.ReportFailed(rep, stock)
}

func runKey(stockID uuid.UUID, triggerDate string) string {
	return fmt.Sprintf("%s|%s", stockID, triggerDate)
}
