// Package browser combines the three discovery sources (LAN scan, custom
// list, master registry) into one deduplicated server set, keeps it fresh on
// independent timers and exposes it as read-only observable state.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/openfrag/scout/internal/geoip"
	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/netscan"
	"github.com/openfrag/scout/internal/query"
	"github.com/openfrag/scout/internal/storage"
)

// Options configures the discovery service.
type Options struct {
	MasterHost     string
	MasterPort     uint16
	MasterInterval time.Duration
	LocalInterval  time.Duration
}

// Status is the per-cycle state exposed to the UI layer.
type Status struct {
	LastLocalScan  time.Time                 `json:"last_local_scan"`
	LastMasterSync time.Time                 `json:"last_master_sync"`
	LastError      string                    `json:"last_error,omitempty"`
	Interfaces     []models.NetworkInterface `json:"interfaces"`
	ScanInProgress bool                      `json:"scan_in_progress"`
}

// Service owns the aggregated server set. All exported methods are safe for
// concurrent use.
type Service struct {
	client  *query.Client
	scanner *netscan.Scanner
	store   *storage.Repository

	// geo annotates master-derived entries with a country code, nil when
	// the GeoIP database is unavailable.
	geo *geoip.Provider

	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	forceLocal  chan struct{}
	forceMaster chan struct{}

	mu         sync.Mutex
	lastLocal  []models.ServerRecord
	lastCustom []models.ServerRecord
	lastMaster []models.ServerRecord
	set        models.AggregatedServerSet
	status     Status

	wg sync.WaitGroup
}

// New builds the discovery service around its collaborators. geo may be nil.
func New(client *query.Client, scanner *netscan.Scanner, store *storage.Repository, geo *geoip.Provider, opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		client:      client,
		scanner:     scanner,
		store:       store,
		geo:         geo,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		forceLocal:  make(chan struct{}, 1),
		forceMaster: make(chan struct{}, 1),
	}
}

// Snapshot returns a copy of the current aggregated set and cycle status.
func (s *Service) Snapshot() (models.AggregatedServerSet, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := models.AggregatedServerSet{
		UpdatedAt: s.set.UpdatedAt,
		Servers:   append([]models.ServerRecord(nil), s.set.Servers...),
	}

	status := s.status
	status.ScanInProgress = s.scanner.InProgress()
	status.Interfaces = s.scanner.Interfaces()

	return set, status
}

// CustomServers proxies the persisted custom list for the API layer.
func (s *Service) CustomServers() ([]models.CustomServerEntry, error) {
	return s.store.CustomServers()
}

// AddCustomServer appends a user-entered address and triggers a refresh of
// the master+custom path so the new entry shows up without waiting a cycle.
func (s *Service) AddCustomServer(address string) (models.CustomServerEntry, error) {
	entry, err := s.store.AddCustomServer(address)
	if err != nil {
		return entry, err
	}

	s.ForceRefresh(ScopeMaster)

	return entry, nil
}

// RemoveCustomServer deletes a custom entry and drops its record from the
// current set on the next rebuild.
func (s *Service) RemoveCustomServer(address string) error {
	if err := s.store.RemoveCustomServer(address); err != nil {
		return err
	}

	s.ForceRefresh(ScopeMaster)

	return nil
}

// rebuild recomputes the aggregated set from the cached per-source slices.
// Callers hold s.mu.
func (s *Service) rebuild() {
	s.set = models.AggregatedServerSet{
		UpdatedAt: time.Now(),
		Servers:   Merge(s.lastLocal, s.lastCustom, s.lastMaster),
	}
}
