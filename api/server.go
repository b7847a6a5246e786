package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ohmystock/cache"
	"ohmystock/database"
	"ohmystock/database/reports"
	"ohmystock/database/snapshots"
	"ohmystock/database/types"
	"ohmystock/database/webhooks"
	"ohmystock/notifications"
	"ohmystock/realtime"
)

// Server handles HTTP API requests
type Server struct {
	reports    *reports.Repository
	webhooks   *webhooks.Repository
	webhookMgr *notifications.WebhookManager
	broker     *realtime.Broker
	statsDB    *database.StatsDB

	similar    SimilarFinder
	pipeline   PipelineStatsProvider
	priceCache *cache.PriceCache
	snapshots  *snapshots.Repository
}

// SimilarFinder recomputes the historical case set for a stored report
type SimilarFinder interface {
	FindSimilar(stockID uuid.UUID, triggerDate string, triggerChangePct float64, triggerVolume int64) (*types.SimilarCaseSet, error)
}

// PipelineStatsProvider exposes the orchestrator counters
type PipelineStatsProvider interface {
	Stats() (processed, completed, failed, superseded int64)
}

// NewServer creates a new API server instance
func NewServer(reportRepo *reports.Repository, webhookRepo *webhooks.Repository,
	webhookMgr *notifications.WebhookManager, broker *realtime.Broker, statsDB *database.StatsDB) *Server {
	return &Server{
		reports:    reportRepo,
		webhooks:   webhookRepo,
		webhookMgr: webhookMgr,
		broker:     broker,
		statsDB:    statsDB,
	}
}

// SetSimilarFinder wires the similarity engine for on-demand case lookups
func (s *Server) SetSimilarFinder(f SimilarFinder) {
	s.similar = f
}

// SetPipelineStats wires the orchestrator counter source
func (s *Server) SetPipelineStats(p PipelineStatsProvider) {
	s.pipeline = p
}

// SetPriceCache wires the latest-price read path
func (s *Server) SetPriceCache(pc *cache.PriceCache, snaps *snapshots.Repository) {
	s.priceCache = pc
	s.snapshots = snaps
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Report event stream (websocket)
	mux.Handle("GET /api/events", s.broker)

	// Report read routes
	mux.HandleFunc("GET /api/reports", s.handleGetReports)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/reports/{id}/similar-cases", s.handleGetSimilarCases)

	// Latest price route
	mux.HandleFunc("GET /api/stocks/{id}/price", s.handleGetLatestPrice)

	// Pipeline stats routes
	mux.HandleFunc("GET /api/stats", s.handleGetStats)
	mux.HandleFunc("GET /api/stats/daily", s.handleGetDailyStats)

	// Webhook management routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	mux.HandleFunc("GET /health", s.handleHealth)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
