package netscan

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/query"
)

// ErrScanInProgress is returned when Scan is called while another scan on
// the same Scanner has not finished yet. Overlapping fan-outs over the same
// target set are never allowed.
var ErrScanInProgress = errors.New("netscan: scan already in progress")

// Scanner fans out query probes over the local network. Safe for concurrent
// use; at most one scan runs at a time.
type Scanner struct {
	client *query.Client
	cfg    models.ScanConfiguration

	// limiter optionally paces probe admission in packets per second on
	// top of the concurrency cap. Nil means unpaced.
	limiter *rate.Limiter

	// enumerate is swapped out by tests.
	enumerate func() ([]models.NetworkInterface, error)

	mu         sync.Mutex
	ifCache    []models.NetworkInterface
	ifCachedAt time.Time
	ifTTL      time.Duration

	running atomic.Bool
}

// ScannerOption tweaks a Scanner at construction time.
type ScannerOption func(*Scanner)

// WithProbeRate paces probe admission to the given packets per second.
func WithProbeRate(pps int) ScannerOption {
	return func(s *Scanner) {
		if pps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(pps), pps)
		}
	}
}

// WithInterfaceTTL overrides how long an interface snapshot is reused.
func WithInterfaceTTL(ttl time.Duration) ScannerOption {
	return func(s *Scanner) { s.ifTTL = ttl }
}

// WithEnumerator substitutes interface enumeration, used by tests.
func WithEnumerator(fn func() ([]models.NetworkInterface, error)) ScannerOption {
	return func(s *Scanner) { s.enumerate = fn }
}

// NewScanner validates the configuration and builds a scanner around the
// given query client.
func NewScanner(client *query.Client, cfg models.ScanConfiguration, opts ...ScannerOption) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{
		client:    client,
		cfg:       cfg,
		enumerate: Interfaces,
		ifTTL:     48 * time.Hour,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Interfaces returns the cached interface snapshot, refreshing it when the
// cache has expired. Interface topology changes rarely, so the snapshot is
// kept far longer than any scan result.
func (s *Scanner) Interfaces() []models.NetworkInterface {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ifCache != nil && time.Since(s.ifCachedAt) < s.ifTTL {
		return s.ifCache
	}

	ifaces, err := s.enumerate()
	if err != nil {
		log.Warn().Err(err).Msg("Interface enumeration failed")
		return s.ifCache
	}

	s.ifCache = ifaces
	s.ifCachedAt = time.Now()

	return ifaces
}

// Scan probes every candidate host on every configured port and returns the
// servers that answered. Probes run concurrently but never more than
// MaxConcurrent at once; a slot is freed as soon as any probe finishes, so
// slow probes do not stall a whole batch. Non-answers are the expected
// outcome for almost every pair and are dropped silently.
func (s *Scanner) Scan(ctx context.Context) ([]models.ServerRecord, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)

	targets := s.targets()
	if len(targets) == 0 {
		log.Debug().Msg("No scan targets, no usable interfaces found")
		return nil, nil
	}

	log.Debug().
		Int("targets", len(targets)).
		Int("max_concurrent", s.cfg.MaxConcurrent).
		Dur("timeout", s.cfg.Timeout).
		Msg("Starting LAN scan")

	start := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []models.ServerRecord
	)

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(addr models.Address) {
			defer wg.Done()
			defer func() { <-sem }()

			rec, err := s.client.Query(ctx, addr)
			if err != nil {
				// Expected for the overwhelming majority of pairs.
				return
			}

			rec.Sources = models.SourceLocal

			mu.Lock()
			results = append(results, *rec)
			mu.Unlock()
		}(target)
	}

	wg.Wait()

	// Completion order is nondeterministic, sort for a stable UI list.
	slices.SortFunc(results, func(a, b models.ServerRecord) int {
		if c := strings.Compare(a.Address.Host, b.Address.Host); c != 0 {
			return c
		}
		return int(a.Address.Port) - int(b.Address.Port)
	})

	log.Info().
		Int("targets", len(targets)).
		Int("found", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("LAN scan finished")

	return results, ctx.Err()
}

// InProgress reports whether a scan is currently running.
func (s *Scanner) InProgress() bool {
	return s.running.Load()
}

// targets builds the host x port cross product for all usable interfaces.
func (s *Scanner) targets() []models.Address {
	seen := make(map[string]struct{})
	var targets []models.Address

	for _, iface := range s.Interfaces() {
		for _, host := range ExpandHosts(iface.CIDR) {
			if _, dup := seen[host]; dup {
				continue
			}
			seen[host] = struct{}{}

			for port := int(s.cfg.PortStart); port <= int(s.cfg.PortEnd); port++ {
				targets = append(targets, models.Address{Host: host, Port: uint16(port)})
			}
		}
	}

	return targets
}
