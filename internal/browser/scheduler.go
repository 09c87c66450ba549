package browser

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scope names a refresh path for ForceRefresh.
type Scope string

// Refresh scopes.
const (
	ScopeLocal  Scope = "local"
	ScopeMaster Scope = "master"
	ScopeAll    Scope = "all"
)

// Start launches the two refresh timers: one for the master+custom path and
// a typically shorter one for the LAN scan. Each path also runs once
// immediately so the UI has data before the first tick.
func (s *Service) Start() {
	s.wg.Add(2)
	go s.loop("local", s.opts.LocalInterval, s.forceLocal, s.RefreshLocal)
	go s.loop("master", s.opts.MasterInterval, s.forceMaster, s.RefreshMaster)
}

// Stop cancels in-flight refreshes and waits for both timer loops to exit.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// ForceRefresh requests an immediate re-run of the given path(s). The
// request restarts the path's timer instead of stacking a second concurrent
// run; a force while a forced run is still pending is coalesced.
func (s *Service) ForceRefresh(scope Scope) {
	push := func(ch chan struct{}) {
		select {
		case ch <- struct{}{}:
		default: // already pending
		}
	}

	switch scope {
	case ScopeLocal:
		push(s.forceLocal)
	case ScopeMaster:
		push(s.forceMaster)
	default:
		push(s.forceLocal)
		push(s.forceMaster)
	}
}

// minCycleBudget is the floor for a single refresh run's deadline. The run
// budget must not be clipped to a short refresh interval: a full /16 sweep
// at default pacing legitimately outlasts the default LAN interval, and
// servers found before the cutoff must survive either way.
const minCycleBudget = 5 * time.Minute

func (s *Service) loop(name string, interval time.Duration, force <-chan struct{}, fn func(context.Context) error) {
	defer s.wg.Done()

	budget := interval
	if budget < minCycleBudget {
		budget = minCycleBudget
	}

	run := func() {
		ctx, cancel := context.WithTimeout(s.ctx, budget)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Debug().Err(err).Str("path", name).Msg("Refresh cycle ended with error")
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			run()
		case <-force:
			// Restart the timer so the next periodic run is a full
			// interval away from this forced one.
			ticker.Reset(interval)
			run()
		}
	}
}
