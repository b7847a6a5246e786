package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"ohmystock/config"
	"ohmystock/database"
	models "ohmystock/database/models_pkg"
	"ohmystock/database/types"
	"ohmystock/llm"
	"ohmystock/providers"
)

type fakePipelineStore struct {
	mu sync.Mutex

	stock *models.Stock

	markGenErr error
	failCalls  []string
	completed  bool
	summary    string
	analysis   []byte
	sources    []models.ReportSource
	srcErr     error
}

func (f *fakePipelineStore) Pending(limit int) ([]models.Report, error) { return nil, nil }

func (f *fakePipelineStore) MarkGenerating(id uuid.UUID, generation int) error {
	return f.markGenErr
}

func (f *fakePipelineStore) ReplaceSources(id uuid.UUID, generation int, sources []models.ReportSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.srcErr != nil {
		return f.srcErr
	}
	f.sources = sources
	return nil
}

func (f *fakePipelineStore) Complete(id uuid.UUID, generation int, summary string, analysis []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	f.summary = summary
	f.analysis = analysis
	return nil
}

func (f *fakePipelineStore) Fail(id uuid.UUID, generation int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCalls = append(f.failCalls, reason)
	return nil
}

func (f *fakePipelineStore) StockByID(id uuid.UUID) (*models.Stock, error) {
	return f.stock, nil
}

type fakeContextProvider struct {
	name  string
	items []providers.ContextItem
	err   error
}

func (f *fakeContextProvider) Name() string { return f.name }

func (f *fakeContextProvider) Fetch(ctx context.Context, symbol string, window time.Duration) ([]providers.ContextItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeSimilar struct {
	set *types.SimilarCaseSet
	err error
}

func (f *fakeSimilar) FindSimilar(stockID uuid.UUID, triggerDate string, triggerChangePct float64, triggerVolume int64) (*types.SimilarCaseSet, error) {
	return f.set, f.err
}

type fakeSynth struct {
	doc *types.AnalysisDocument
	err error
}

func (f *fakeSynth) Synthesize(ctx context.Context, in llm.SynthesisInput) (*types.AnalysisDocument, error) {
	return f.doc, f.err
}

type fakeEvents struct {
	mu        sync.Mutex
	completed int
	failed    int
}

func (f *fakeEvents) ReportCompleted(report *models.Report, stock *models.Stock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
}

func (f *fakeEvents) ReportFailed(report *models.Report, stock *models.Stock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed++
}

func pipelineTestConfig() config.PipelineConfig {
	return config.PipelineConfig{
		PollIntervalSeconds:  1,
		StageTimeoutSeconds:  2,
		ReportTimeoutSeconds: 5,
		StageAttempts:        1,
		RetryBackoffMS:       1,
		MaxConcurrentReports: 2,
		ContextWindowHours:   48,
	}
}

func pendingReport(stockID uuid.UUID) models.Report {
	return models.Report{
		ID:               uuid.New(),
		StockID:          stockID,
		TriggerDate:      "2025-06-02",
		TriggerPrice:     70000,
		TriggerChangePct: 5.0,
		TriggerVolume:    1000,
		Generation:       1,
		Status:           models.ReportStatusPending,
	}
}

func TestProcessReportCompletes(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930", Name: "Samsung Electronics"}
	store := &fakePipelineStore{stock: stock}
	events := &fakeEvents{}

	news := &fakeContextProvider{name: "news", items: []providers.ContextItem{
		{SourceType: "news", Title: "Earnings beat", URL: "https://news.example.com/1"},
	}}
	similar := &fakeSimilar{set: &types.SimilarCaseSet{Cases: []types.SimilarCase{}}}
	synth := &fakeSynth{doc: types.NewMultiLayerDocument("Strong earnings drove the move")}

	o := NewOrchestrator(store, []providers.ContextProvider{news}, similar, nil, synth, events, true, pipelineTestConfig())
	o.processReport(pendingReport(stock.ID))

	if !store.completed {
		t.Fatalf("report was not completed")
	}
	if store.summary != "Strong earnings drove the move" {
		t.Errorf("summary = %q", store.summary)
	}
	if len(store.sources) != 1 || store.sources[0].Title != "Earnings beat" {
		t.Errorf("sources = %+v", store.sources)
	}
	if events.completed != 1 || events.failed != 0 {
		t.Errorf("events completed=%d failed=%d", events.completed, events.failed)
	}

	doc, err := types.DecodeAnalysis(store.analysis)
	if err != nil {
		t.Fatalf("stored analysis does not decode: %v", err)
	}
	if doc.Schema() != types.SchemaMultiLayer {
		t.Errorf("stored schema = %s, want multi_layer", doc.Schema())
	}
}

func TestProcessReportSynthesisFailure(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930"}
	store := &fakePipelineStore{stock: stock}
	events := &fakeEvents{}

	news := &fakeContextProvider{name: "news", items: []providers.ContextItem{
		{SourceType: "news", Title: "x", URL: "https://example.com"},
	}}
	similar := &fakeSimilar{set: &types.SimilarCaseSet{Cases: []types.SimilarCase{}}}
	synth := &fakeSynth{err: errors.New("service down")}

	o := NewOrchestrator(store, []providers.ContextProvider{news}, similar, nil, synth, events, true, pipelineTestConfig())
	o.processReport(pendingReport(stock.ID))

	if store.completed {
		t.Fatalf("report must not complete when synthesis fails")
	}
	if len(store.failCalls) != 1 || store.failCalls[0] != database.FailReasonReasoningUnavailable {
		t.Errorf("fail calls = %v, want [reasoning_unavailable]", store.failCalls)
	}
	if events.failed != 1 {
		t.Errorf("failed events = %d, want 1", events.failed)
	}
}

func TestProcessReportStaleGeneration(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930"}
	store := &fakePipelineStore{stock: stock, markGenErr: database.ErrStaleGeneration}
	events := &fakeEvents{}

	o := NewOrchestrator(store, nil, &fakeSimilar{}, nil, &fakeSynth{}, events, true, pipelineTestConfig())
	o.processReport(pendingReport(stock.ID))

	_, _, _, superseded := o.Stats()
	if superseded != 1 {
		t.Errorf("superseded = %d, want 1", superseded)
	}
	if len(store.failCalls) != 0 || store.completed {
		t.Errorf("stale run must not write anything, fail=%v completed=%v", store.failCalls, store.completed)
	}
}

func TestProcessReportNoContext(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930"}
	store := &fakePipelineStore{stock: stock}
	events := &fakeEvents{}

	// Every provider rejects permanently and history is empty without even a
	// benign message: nothing to reason over.
	news := &fakeContextProvider{name: "news", err: providers.Permanent("news", 401, errors.New("invalid key"))}
	similar := &fakeSimilar{set: &types.SimilarCaseSet{Cases: []types.SimilarCase{}}}
	synth := &fakeSynth{doc: types.NewMultiLayerDocument("unused")}

	o := NewOrchestrator(store, []providers.ContextProvider{news}, similar, nil, synth, events, true, pipelineTestConfig())
	o.processReport(pendingReport(stock.ID))

	if store.completed {
		t.Fatalf("report must not complete without any enrichment")
	}
	if len(store.failCalls) != 1 || store.failCalls[0] != database.FailReasonNoContext {
		t.Errorf("fail calls = %v, want [no_context]", store.failCalls)
	}
}

func TestProcessReportDegradedProviderStillCompletes(t *testing.T) {
	stock := &models.Stock{ID: uuid.New(), Code: "005930"}
	store := &fakePipelineStore{stock: stock}
	events := &fakeEvents{}

	// News is down, disclosures answer: the report degrades but completes.
	news := &fakeContextProvider{name: "news", err: providers.Transient("news", errors.New("timeout"))}
	dart := &fakeContextProvider{name: "disclosure", items: []providers.ContextItem{
		{SourceType: "disclosure", Title: "Major contract", URL: "https://dart.example.com/1"},
	}}
	similar := &fakeSimilar{set: &types.SimilarCaseSet{Cases: []types.SimilarCase{}}}
	synth := &fakeSynth{doc: types.NewMultiLayerDocument("Contract disclosure")}

	o := NewOrchestrator(store, []providers.ContextProvider{news, dart}, similar, nil, synth, events, true, pipelineTestConfig())
	o.processReport(pendingReport(stock.ID))

	if !store.completed {
		t.Fatalf("report must complete with one degraded provider")
	}
	if len(store.sources) != 1 || store.sources[0].SourceType != "disclosure" {
		t.Errorf("sources = %+v", store.sources)
	}
}

func TestCancelAbortsInflightRun(t *testing.T) {
	o := NewOrchestrator(&fakePipelineStore{}, nil, &fakeSimilar{}, nil, &fakeSynth{}, nil, true, pipelineTestConfig())

	stockID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	key := runKey(stockID, "2025-06-02")
	o.mu.Lock()
	o.inflight[key] = &runHandle{cancel: cancel}
	o.mu.Unlock()

	o.Cancel(stockID, "2025-06-02")

	select {
	case <-ctx.Done():
	default:
		t.Errorf("cancel did not abort the run context")
	}

	o.mu.Lock()
	_, still := o.inflight[key]
	o.mu.Unlock()
	if still {
		t.Errorf("cancelled run still registered")
	}
}
