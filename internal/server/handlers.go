package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/browser"
	"github.com/openfrag/scout/internal/quickmatch"
	"github.com/openfrag/scout/internal/vars"
)

// handleServers returns the current aggregated server set.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	set, _ := s.svc.Snapshot()
	respondJSON(w, http.StatusOK, set)
}

// handleStatus returns the per-cycle discovery status: in-progress flag,
// last scan times, detected interfaces and the last systemic error.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	_, status := s.svc.Snapshot()
	respondJSON(w, http.StatusOK, status)
}

// quickMatchCriteria returns the persisted criteria, or the configured
// defaults when nothing was stored. Decoding happens on a scratch copy so a
// corrupt blob cannot leave half-applied fields behind.
func (s *Server) quickMatchCriteria() quickmatch.Criteria {
	loaded := s.defaultCriteria
	ok, err := s.store.LoadQuickMatchCriteria(&loaded)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load quick-match criteria, using defaults")
		return s.defaultCriteria
	}
	if !ok {
		log.Debug().Msg("No persisted quick-match criteria, using defaults")
		return s.defaultCriteria
	}

	return loaded
}

// handleQuickMatch ranks the current set and returns the best server, or
// 404 when nothing qualifies.
func (s *Server) handleQuickMatch(w http.ResponseWriter, _ *http.Request) {
	criteria := s.quickMatchCriteria()

	owned, err := s.store.OwnedData()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load owned game-data set")
		owned = nil
	}

	set, _ := s.svc.Snapshot()
	best := quickmatch.Rank(set.Servers, criteria, owned)
	if best == nil {
		http.Error(w, "No server matches the criteria", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, best)
}

// handleRefresh triggers an immediate re-run of the requested path.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	scope := browser.Scope(r.URL.Query().Get("scope"))
	switch scope {
	case browser.ScopeLocal, browser.ScopeMaster, browser.ScopeAll:
	case "":
		scope = browser.ScopeAll
	default:
		http.Error(w, "Unknown refresh scope", http.StatusBadRequest)
		return
	}

	s.svc.ForceRefresh(scope)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// handleCustomList returns the user-entered server list in display order.
func (s *Server) handleCustomList(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.svc.CustomServers()
	if err != nil {
		http.Error(w, "Storage failure", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// handleCustomAdd validates and appends one custom server address.
func (s *Server) handleCustomAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 512)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	entry, err := s.svc.AddCustomServer(req.Address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

// handleCustomDelete removes one custom server address.
func (s *Server) handleCustomDelete(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "Missing address parameter", http.StatusBadRequest)
		return
	}

	if err := s.svc.RemoveCustomServer(address); err != nil {
		http.Error(w, "Storage failure", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleVersion returns build metadata.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, vars.Info())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}
