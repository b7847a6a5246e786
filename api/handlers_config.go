package api

import (
	"net/http"
	"strconv"

	"ohmystock/database"
)

// handleHealth returns the health status of the API
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Configuration Handlers (Webhooks Only)

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.webhooks.List()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load webhooks", err)
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var hook database.ReportWebhook
	if err := decodeBody(r, &hook); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Reset ID to let DB assign it
	hook.ID = 0

	if err := s.webhooks.Save(&hook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to save webhook", err)
		return
	}

	// Refresh webhook manager cache
	if s.webhookMgr != nil {
		s.webhookMgr.RefreshCache()
	}

	writeJSON(w, http.StatusCreated, hook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", err)
		return
	}

	var hook database.ReportWebhook
	if err := decodeBody(r, &hook); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hook.ID = id // Ensure ID matches path
	if err := s.webhooks.Update(&hook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to update webhook", err)
		return
	}

	if s.webhookMgr != nil {
		s.webhookMgr.RefreshCache()
	}

	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", err)
		return
	}

	if err := s.webhooks.Delete(id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete webhook", err)
		return
	}

	if s.webhookMgr != nil {
		s.webhookMgr.RefreshCache()
	}

	w.WriteHeader(http.StatusNoContent)
}
