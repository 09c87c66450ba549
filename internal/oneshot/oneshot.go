// Package oneshot runs the single-cycle command modes: a bare LAN scan or a
// full quick-match pass, printed to the log instead of served over the API.
package oneshot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/browser"
	"github.com/openfrag/scout/internal/config"
	"github.com/openfrag/scout/internal/quickmatch"
	"github.com/openfrag/scout/internal/storage"
)

// Run checks the one-shot flags and executes the corresponding mode.
// Returns true if a mode ran, meaning the program should exit instead of
// starting the service.
func Run(cfg *config.Config, svc *browser.Service, store *storage.Repository) bool {
	switch {
	case cfg.ScanOnce:
		scanOnce(svc)
		return true
	case cfg.MatchOnce:
		matchOnce(cfg, svc, store)
		return true
	default:
		return false
	}
}

func scanOnce(svc *browser.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Info().Msg("Running one LAN scan...")
	if err := svc.RefreshLocal(ctx); err != nil {
		log.Error().Err(err).Msg("LAN scan failed")
		return
	}

	set, _ := svc.Snapshot()
	for _, srv := range set.Servers {
		ev := log.Info().
			Str("addr", srv.Address.String()).
			Str("name", srv.Name).
			Str("map", srv.Map).
			Int("players", srv.ActivePlayers())
		if srv.Ping != nil {
			ev = ev.Int64("ping_ms", *srv.Ping)
		}
		ev.Msg("Server found")
	}

	log.Info().Int("count", len(set.Servers)).Msg("Scan finished")
}

func matchOnce(cfg *config.Config, svc *browser.Service, store *storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Info().Msg("Running one full discovery cycle...")
	set, err := svc.Aggregate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Every discovery source failed")
		return
	}

	criteria := cfg.QuickMatch.Criteria()
	loaded := criteria
	if ok, err := store.LoadQuickMatchCriteria(&loaded); err != nil {
		log.Error().Err(err).Msg("Failed to load persisted criteria, using defaults")
	} else if ok {
		criteria = loaded
	}

	owned, err := store.OwnedData()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load owned game-data set")
	}

	best := quickmatch.Rank(set.Servers, criteria, owned)
	if best == nil {
		log.Warn().Int("candidates", len(set.Servers)).Msg("No server matches the criteria")
		return
	}

	ev := log.Info().
		Str("addr", best.Address.String()).
		Str("name", best.Name).
		Str("map", best.Map).
		Int("players", best.ActivePlayers()).
		Int64("score", quickmatch.Score(best))
	if best.Ping != nil {
		ev = ev.Int64("ping_ms", *best.Ping)
	}
	ev.Msg("Quick match result")
}
