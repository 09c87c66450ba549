// Package server exposes the discovery state to the UI layer over a small
// local HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/openfrag/scout/internal/browser"
	"github.com/openfrag/scout/internal/config"
	"github.com/openfrag/scout/internal/quickmatch"
	"github.com/openfrag/scout/internal/storage"
)

// Server holds the dependencies and configuration required to serve the API.
type Server struct {
	// svc is the discovery service whose observable state the API exposes.
	svc *browser.Service

	// store backs the quick-match criteria and owned game-data lookups.
	store *storage.Repository

	// defaultCriteria applies when no criteria were persisted yet.
	defaultCriteria quickmatch.Criteria

	// rateCount and rateWindow bound per-IP request rates.
	rateCount  int
	rateWindow time.Duration
}

// New creates the API server around the discovery service.
func New(svc *browser.Service, store *storage.Repository, cfg *config.Config) *Server {
	return &Server{
		svc:             svc,
		store:           store,
		defaultCriteria: cfg.QuickMatch.Criteria(),
		rateCount:       cfg.Server.RateCount,
		rateWindow:      cfg.Server.RateWindow,
	}
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/servers", http.HandlerFunc(s.handleServers))
	mux.Handle("GET /api/status", http.HandlerFunc(s.handleStatus))
	mux.Handle("GET /api/quickmatch", http.HandlerFunc(s.handleQuickMatch))
	mux.Handle("POST /api/refresh", http.HandlerFunc(s.handleRefresh))
	mux.Handle("GET /api/custom", http.HandlerFunc(s.handleCustomList))
	mux.Handle("POST /api/custom", http.HandlerFunc(s.handleCustomAdd))
	mux.Handle("DELETE /api/custom", http.HandlerFunc(s.handleCustomDelete))
	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))

	return s.LoggingMiddleware(s.RateLimitMiddleware(mux))
}
