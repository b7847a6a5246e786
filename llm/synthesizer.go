package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ohmystock/database/types"
	"ohmystock/providers"
)

const fallbackSummaryLimit = 200

// ReasoningClient abstracts the external reasoning service
type ReasoningClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SynthesisInput carries everything the synthesizer feeds into the prompt
type SynthesisInput struct {
	StockName        string
	StockCode        string
	TriggerChangePct float64
	Sources          []providers.ContextItem
	SimilarCases     []types.SimilarCase
	SectorImpact     *types.SectorImpact
}

// Synthesizer turns a trigger plus its enrichment results into a structured
// causal analysis document.
//
// Degradation policy: malformed or unparseable output falls back to a flat
// summary carrying whatever partial text the service produced, and the report
// still completes. Only total service unavailability (retries exhausted or
// a non-retryable API error) surfaces as an error.
type Synthesizer struct {
	client   ReasoningClient
	attempts int
	backoff  time.Duration
}

// NewSynthesizer creates a synthesizer with bounded retries
func NewSynthesizer(client ReasoningClient, attempts int, backoff time.Duration) *Synthesizer {
	if attempts < 1 {
		attempts = 1
	}
	return &Synthesizer{client: client, attempts: attempts, backoff: backoff}
}

// Synthesize invokes the reasoning service and parses its output
func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) (*types.AnalysisDocument, error) {
	prompt := BuildPrompt(in)

	raw, err := s.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	doc, err := ParseAnalysis(raw)
	if err != nil {
		// Structurally invalid output is not a pipeline failure; degrade to
		// a flat summary with whatever text came back.
		log.Printf("⚠️  Unparseable analysis output, degrading to flat summary: %v", err)
		return fallbackDocument(raw), nil
	}

	doc.SectorImpact = in.SectorImpact
	return doc, nil
}

func (s *Synthesizer) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		raw, err := s.client.Generate(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return "", fmt.Errorf("reasoning service rejected request: %w", err)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("reasoning call cancelled: %w", ctx.Err())
		}

		if attempt < s.attempts {
			log.Printf("⚠️  Reasoning call failed (attempt %d/%d), retrying: %v", attempt, s.attempts, err)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("reasoning call cancelled: %w", ctx.Err())
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
	}
	return "", fmt.Errorf("reasoning service unavailable after %d attempts: %w", s.attempts, lastErr)
}

// BuildPrompt renders the multi-layer analysis prompt for a trigger
func BuildPrompt(in SynthesisInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the abnormal price movement of %s (%s).\n", in.StockName, in.StockCode)
	fmt.Fprintf(&b, "Change: %+.1f%%\n\n", in.TriggerChangePct)

	b.WriteString("Related news and disclosures:\n")
	if len(in.Sources) == 0 {
		b.WriteString("(none available)\n")
	}
	for _, src := range in.Sources {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", src.SourceType, src.Title, src.URL)
	}

	if len(in.SimilarCases) > 0 {
		b.WriteString("\nComparable historical moves for this stock:\n")
		for _, c := range in.SimilarCases {
			fmt.Fprintf(&b, "- %s: %+.1f%% on volume %d", c.Date.Format("2006-01-02"), c.ChangePct, c.Volume)
			if c.Aftermath != nil {
				if c.Aftermath.After1WPct != nil {
					fmt.Fprintf(&b, ", 1w later %+.1f%%", *c.Aftermath.After1WPct)
				}
				if c.Aftermath.After1MPct != nil {
					fmt.Fprintf(&b, ", 1m later %+.1f%%", *c.Aftermath.After1MPct)
				}
			}
			b.WriteString("\n")
		}
	}

	if in.SectorImpact != nil && len(in.SectorImpact.RelatedStocks) > 0 {
		fmt.Fprintf(&b, "\nSector context (%s):\n", in.SectorImpact.Sector)
		for _, rs := range in.SectorImpact.RelatedStocks {
			fmt.Fprintf(&b, "- %s (%s): %+.1f%%\n", rs.Name, rs.Code, rs.ChangePct)
		}
	}

	b.WriteString(`
Classify the causes in three layers:
1. Direct causes: company-specific events directly explaining the move
2. Indirect causes: industry or supply-chain effects
3. Macro factors: market-wide environment

Each cause needs confidence (high|medium|low) and impact_level
(critical|significant|minor). Add a one-line summary and a short-term /
medium-term outlook.

Respond with JSON only:
{"summary": "...",
 "direct_causes": [{"reason": "...", "confidence": "high|medium|low", "impact": "...", "impact_level": "critical|significant|minor"}],
 "indirect_causes": [...],
 "macro_factors": [...],
 "outlook": {"short_term": "...", "medium_term": "..."}}`)

	return b.String()
}

// ParseAnalysis parses reasoning service output into an analysis document.
// Tolerates a fenced code block around the JSON body.
func ParseAnalysis(raw string) (*types.AnalysisDocument, error) {
	text := stripCodeFence(raw)

	var parsed struct {
		Summary        string                 `json:"summary"`
		DirectCauses   []types.AnalysisCause  `json:"direct_causes"`
		IndirectCauses []types.AnalysisCause  `json:"indirect_causes"`
		MacroFactors   []types.AnalysisCause  `json:"macro_factors"`
		Outlook        *types.AnalysisOutlook `json:"outlook"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w", err)
	}
	if parsed.Summary == "" {
		return nil, fmt.Errorf("parse analysis JSON: missing summary")
	}

	doc := types.NewMultiLayerDocument(parsed.Summary)
	if parsed.DirectCauses != nil {
		doc.DirectCauses = parsed.DirectCauses
	}
	if parsed.IndirectCauses != nil {
		doc.IndirectCauses = parsed.IndirectCauses
	}
	if parsed.MacroFactors != nil {
		doc.MacroFactors = parsed.MacroFactors
	}
	doc.Outlook = parsed.Outlook
	return doc, nil
}

// fallbackDocument builds the minimal degraded document from raw output
func fallbackDocument(raw string) *types.AnalysisDocument {
	summary := strings.TrimSpace(stripCodeFence(raw))
	if runes := []rune(summary); len(runes) > fallbackSummaryLimit {
		summary = string(runes[:fallbackSummaryLimit])
	}
	if summary == "" {
		summary = "Analysis produced no usable output"
	}
	return types.NewMultiLayerDocument(summary)
}

// stripCodeFence removes a surrounding markdown code fence if present
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
