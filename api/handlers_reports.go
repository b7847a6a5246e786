package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"ohmystock/database"
	"ohmystock/database/types"
	"ohmystock/helpers"
)

// reportDetail is the report read model: the stored row plus its decoded
// analysis and the freshness of the stock's latest snapshot.
type reportDetail struct {
	database.Report
	AnalysisDoc    *types.AnalysisDocument `json:"analysis_doc,omitempty"`
	AnalysisSchema string                  `json:"analysis_schema,omitempty"`
	Freshness      string                  `json:"freshness"`
}

func (s *Server) handleGetReports(w http.ResponseWriter, r *http.Request) {
	minLimit, maxLimit := 1, 200
	limit := getIntParam(r, "limit", 50, &minLimit, &maxLimit)
	status := r.URL.Query().Get("status")

	reports, err := s.reports.Recent(limit, status)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load reports", err)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid report ID", err)
		return
	}

	report, err := s.reports.GetByID(id)
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "Report not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load report", err)
		return
	}

	detail := reportDetail{Report: *report, Freshness: s.stockFreshness(report.StockID)}

	if len(report.Analysis) > 0 {
		doc, err := types.DecodeAnalysis(report.Analysis)
		if err == nil {
			detail.AnalysisDoc = doc
			detail.AnalysisSchema = doc.Schema()
		}
		// An undecodable historical document still returns the raw bytes.
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetSimilarCases(w http.ResponseWriter, r *http.Request) {
	if s.similar == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Similarity engine not available", nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid report ID", err)
		return
	}

	report, err := s.reports.GetByID(id)
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "Report not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load report", err)
		return
	}

	set, err := s.similar.FindSimilar(report.StockID, report.TriggerDate, report.TriggerChangePct, report.TriggerVolume)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Similar case search failed", err)
		return
	}

	writeJSON(w, http.StatusOK, set)
}

// stockFreshness classifies the age of the stock's latest snapshot
func (s *Server) stockFreshness(stockID uuid.UUID) string {
	if s.snapshots == nil {
		return helpers.FreshnessUnknown
	}
	snap, err := s.snapshots.Latest(stockID)
	if err != nil || snap == nil {
		return helpers.FreshnessUnknown
	}
	return helpers.Freshness(snap.CapturedAt, time.Now())
}

func (s *Server) handleGetLatestPrice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid stock ID", err)
		return
	}

	// Cache first, database fallback
	if s.priceCache != nil {
		if quote, ok := s.priceCache.GetLatest(r.Context(), id.String()); ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"quote":     quote,
				"freshness": helpers.Freshness(quote.Timestamp, time.Now()),
				"cached":    true,
			})
			return
		}
	}

	if s.snapshots == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Price data not available", nil)
		return
	}

	snap, err := s.snapshots.Latest(id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load price", err)
		return
	}
	if snap == nil {
		respondWithError(w, http.StatusNotFound, "No price data for stock", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quote":     snap,
		"freshness": helpers.Freshness(snap.CapturedAt, time.Now()),
		"cached":    false,
	})
}
