package api

import (
	"net/http"
)

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.statsDB.GetPipelineStats()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load stats", err)
		return
	}

	body := map[string]interface{}{"storage": stats}
	if s.pipeline != nil {
		processed, completed, failed, superseded := s.pipeline.Stats()
		body["pipeline"] = map[string]int64{
			"processed":  processed,
			"completed":  completed,
			"failed":     failed,
			"superseded": superseded,
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetDailyStats(w http.ResponseWriter, r *http.Request) {
	minDays, maxDays := 1, 90
	days := getIntParam(r, "days", 14, &minDays, &maxDays)

	counts, err := s.statsDB.GetDailyReportCounts(days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load daily stats", err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}
