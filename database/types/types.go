// Package types defines shared analysis data shapes exchanged between the
// pipeline stages, the reasoning client, and the read API.
//
// The analysis JSON attached to a report exists in two schema versions:
//
//   - flat (legacy):    {summary, causes[]}
//   - multi_layer:      {summary, direct_causes[], indirect_causes[],
//     macro_factors[], outlook?, sector_impact?}
//
// Writers always emit the multi_layer shape. Readers accept both
// indefinitely; the variant is discriminated at decode time by the presence
// of layered fields, so historical rows never need migration.
package types

import (
	"encoding/json"
	"time"
)

// Analysis schema versions
const (
	SchemaFlat       = "flat"
	SchemaMultiLayer = "multi_layer"
)

// Cause confidence values
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Cause impact levels (multi_layer shape only)
const (
	ImpactCritical    = "critical"
	ImpactSignificant = "significant"
	ImpactMinor       = "minor"
)

// AnalysisCause is a single cause identified by the reasoning service
type AnalysisCause struct {
	Reason      string `json:"reason"`
	Confidence  string `json:"confidence"` // high, medium, low
	Impact      string `json:"impact"`
	ImpactLevel string `json:"impact_level,omitempty"` // critical, significant, minor
}

// AnalysisOutlook holds short/medium term outlook text
type AnalysisOutlook struct {
	ShortTerm  string `json:"short_term,omitempty"`
	MediumTerm string `json:"medium_term,omitempty"`
}

// RelatedStockChange is a same-sector stock with its most recent change
type RelatedStockChange struct {
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	ChangePct float64 `json:"change_pct"`
}

// SectorImpact summarizes how the stock's sector moved around the trigger
type SectorImpact struct {
	Sector          string               `json:"sector"`
	RelatedStocks   []RelatedStockChange `json:"related_stocks"`
	CorrelationNote string               `json:"correlation_note"`
}

// AnalysisDocument is the versioned analysis union. Schema() reports which
// shape the document was decoded from; documents built by the synthesizer
// are always multi_layer.
type AnalysisDocument struct {
	Summary        string           `json:"summary"`
	Causes         []AnalysisCause  `json:"causes,omitempty"` // legacy flat list, kept populated for old readers
	DirectCauses   []AnalysisCause  `json:"direct_causes"`
	IndirectCauses []AnalysisCause  `json:"indirect_causes"`
	MacroFactors   []AnalysisCause  `json:"macro_factors"`
	Outlook        *AnalysisOutlook `json:"outlook,omitempty"`
	SectorImpact   *SectorImpact    `json:"sector_impact,omitempty"`

	schema string
}

// Schema returns the schema version the document was decoded from
// (SchemaFlat or SchemaMultiLayer).
func (d *AnalysisDocument) Schema() string {
	if d.schema == "" {
		return SchemaMultiLayer
	}
	return d.schema
}

// FlatCauses returns the legacy flat cause list. For multi_layer documents
// the layers are concatenated direct, indirect, macro.
func (d *AnalysisDocument) FlatCauses() []AnalysisCause {
	if d.Schema() == SchemaFlat {
		return d.Causes
	}
	flat := make([]AnalysisCause, 0, len(d.DirectCauses)+len(d.IndirectCauses)+len(d.MacroFactors))
	flat = append(flat, d.DirectCauses...)
	flat = append(flat, d.IndirectCauses...)
	flat = append(flat, d.MacroFactors...)
	return flat
}

// NewMultiLayerDocument returns an empty multi_layer document with non-nil
// layer slices.
func NewMultiLayerDocument(summary string) *AnalysisDocument {
	return &AnalysisDocument{
		Summary:        summary,
		DirectCauses:   []AnalysisCause{},
		IndirectCauses: []AnalysisCause{},
		MacroFactors:   []AnalysisCause{},
		schema:         SchemaMultiLayer,
	}
}

// DecodeAnalysis parses a stored analysis JSON document, accepting both the
// legacy flat shape and the current multi_layer shape. A flat document
// decodes with empty (non-nil) layered slices and its causes list intact.
func DecodeAnalysis(raw []byte) (*AnalysisDocument, error) {
	var probe struct {
		Summary        string           `json:"summary"`
		Causes         []AnalysisCause  `json:"causes"`
		DirectCauses   *[]AnalysisCause `json:"direct_causes"`
		IndirectCauses *[]AnalysisCause `json:"indirect_causes"`
		MacroFactors   *[]AnalysisCause `json:"macro_factors"`
		Outlook        *AnalysisOutlook `json:"outlook"`
		SectorImpact   *SectorImpact    `json:"sector_impact"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	doc := &AnalysisDocument{
		Summary:        probe.Summary,
		Causes:         probe.Causes,
		DirectCauses:   []AnalysisCause{},
		IndirectCauses: []AnalysisCause{},
		MacroFactors:   []AnalysisCause{},
		Outlook:        probe.Outlook,
		SectorImpact:   probe.SectorImpact,
	}

	// Absence of every layered field implies the legacy flat shape.
	if probe.DirectCauses == nil && probe.IndirectCauses == nil && probe.MacroFactors == nil {
		doc.schema = SchemaFlat
		if doc.Causes == nil {
			doc.Causes = []AnalysisCause{}
		}
		return doc, nil
	}

	doc.schema = SchemaMultiLayer
	if probe.DirectCauses != nil {
		doc.DirectCauses = *probe.DirectCauses
	}
	if probe.IndirectCauses != nil {
		doc.IndirectCauses = *probe.IndirectCauses
	}
	if probe.MacroFactors != nil {
		doc.MacroFactors = *probe.MacroFactors
	}
	return doc, nil
}

// EncodeAnalysis serializes a document in the current multi_layer shape.
// The flat causes list is filled in for legacy readers that only know the
// old format.
func EncodeAnalysis(doc *AnalysisDocument) ([]byte, error) {
	out := *doc
	if out.DirectCauses == nil {
		out.DirectCauses = []AnalysisCause{}
	}
	if out.IndirectCauses == nil {
		out.IndirectCauses = []AnalysisCause{}
	}
	if out.MacroFactors == nil {
		out.MacroFactors = []AnalysisCause{}
	}
	if len(out.Causes) == 0 {
		out.Causes = out.FlatCauses()
	}
	return json.Marshal(&out)
}

// TrendPoint is one cumulative-return point in a post-event trajectory
type TrendPoint struct {
	Day       int     `json:"day"`
	ChangePct float64 `json:"change_pct"`
}

// CaseAftermath describes the post-event return trajectory of a historical
// case: 1-week and 1-month returns relative to the event-day price, and the
// number of trading snapshots until the price recovered to the event level
// (nil if it never did within the scan window).
type CaseAftermath struct {
	After1WPct   *float64 `json:"after_1w_pct"`
	After1MPct   *float64 `json:"after_1m_pct"`
	RecoveryDays *int     `json:"recovery_days"`
}

// SimilarCase is a historical price window comparable to a trigger event.
// Lower similarity score means more similar. Derived on demand from snapshot
// history; never persisted.
type SimilarCase struct {
	Date             time.Time      `json:"date"`
	ChangePct        float64        `json:"change_pct"`
	Volume           int64          `json:"volume"`
	SimilarityScore  float64        `json:"similarity_score"`
	Trend1W          []TrendPoint   `json:"trend_1w"`
	Trend1M          []TrendPoint   `json:"trend_1m"`
	DataInsufficient bool           `json:"data_insufficient,omitempty"`
	Aftermath        *CaseAftermath `json:"aftermath,omitempty"`
}

// SimilarCaseSet is the similarity engine result. Message is set when the
// case list is empty for a benign reason (insufficient history).
type SimilarCaseSet struct {
	Cases   []SimilarCase `json:"cases"`
	Message string        `json:"message,omitempty"`
}
