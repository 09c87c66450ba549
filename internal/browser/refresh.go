package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/netscan"
)

// RefreshLocal runs one LAN scan and folds the result into the aggregated
// set. A scan already in flight is left alone. A scan cut short by the cycle
// deadline is a partial success: servers that answered before the cutoff
// stay in the set.
func (s *Service) RefreshLocal(ctx context.Context) error {
	results, err := s.scanner.Scan(ctx)
	switch {
	case err == nil:
	case errors.Is(err, netscan.ErrScanInProgress):
		log.Debug().Msg("LAN scan already running, refresh skipped")
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warn().Err(err).Int("found", len(results)).
			Msg("LAN scan cut short, keeping partial results")
	default:
		log.Warn().Err(err).Msg("LAN scan aborted")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLocal = results
	s.status.LastLocalScan = time.Now()
	s.rebuild()

	return nil
}

// RefreshMaster re-runs the master registry fetch and the custom entry
// queries, then folds both into the aggregated set. Only a completely
// unreachable master is surfaced as an error state; individual servers that
// fail to answer are simply absent from this cycle.
func (s *Service) RefreshMaster(ctx context.Context) error {
	addrs, masterErr := s.client.QueryMaster(ctx, s.opts.MasterHost, s.opts.MasterPort)
	if masterErr != nil {
		log.Warn().Err(masterErr).Str("host", s.opts.MasterHost).Msg("Master registry query failed")
	}

	entries, err := s.store.CustomServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load custom server list")
	}

	// Both fan-outs are started before any result is consulted so the
	// rebuilt set reflects one consistent snapshot.
	var (
		wg         sync.WaitGroup
		masterRecs []models.ServerRecord
		customRecs []models.ServerRecord
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		masterRecs = s.queryAll(ctx, addrs, models.SourceMaster)
	}()

	customAddrs := make([]models.Address, 0, len(entries))
	for _, e := range entries {
		addr, err := models.ParseAddress(e.Address)
		if err != nil {
			log.Debug().Str("address", e.Address).Err(err).Msg("Skipping malformed custom entry")
			continue
		}
		customAddrs = append(customAddrs, addr)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		customRecs = s.queryAll(ctx, customAddrs, models.SourceCustom)
	}()

	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastMaster = masterRecs
	s.lastCustom = customRecs
	s.status.LastMasterSync = time.Now()

	if masterErr != nil {
		s.status.LastError = masterErr.Error()
	} else {
		s.status.LastError = ""
	}

	s.rebuild()

	return masterErr
}

// queryAll queries a small address list concurrently. Unlike the LAN scan
// this fan-out is bounded by the list itself (master entries or the handful
// of user-entered addresses) and needs no admission cap.
func (s *Service) queryAll(ctx context.Context, addrs []models.Address, source models.Source) []models.ServerRecord {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		recs []models.ServerRecord
	)

	for _, addr := range addrs {
		wg.Add(1)

		go func(addr models.Address) {
			defer wg.Done()

			rec, err := s.client.Query(ctx, addr)
			if err != nil {
				log.Debug().Err(err).Str("addr", addr.String()).Msg("Server did not answer")
				return
			}

			rec.Sources = source
			if source == models.SourceMaster && s.geo != nil {
				rec.Country = s.geo.CountryCode(addr.Host)
			}

			mu.Lock()
			recs = append(recs, *rec)
			mu.Unlock()
		}(addr)
	}

	wg.Wait()

	return recs
}

// Aggregate runs one full discovery pass over all three sources and returns
// the resulting set. All sources are started before any result is merged.
func (s *Service) Aggregate(ctx context.Context) (models.AggregatedServerSet, error) {
	var (
		wg        sync.WaitGroup
		localErr  error
		masterErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		localErr = s.RefreshLocal(ctx)
	}()
	go func() {
		defer wg.Done()
		masterErr = s.RefreshMaster(ctx)
	}()
	wg.Wait()

	set, _ := s.Snapshot()

	// Partial success is silent; only an all-sources failure is an error
	// state for the caller.
	if localErr != nil && masterErr != nil {
		return set, errors.Join(localErr, masterErr)
	}

	return set, nil
}
