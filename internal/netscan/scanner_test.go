package netscan

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/protocol"
	"github.com/openfrag/scout/internal/query"
)

// fakeNet simulates the LAN for scanner tests: a set of responder addresses
// and instrumentation for the number of probe sockets open at once.
type fakeNet struct {
	mu         sync.Mutex
	responders map[string][]byte

	open    atomic.Int64
	maxOpen atomic.Int64
}

func newFakeNet() *fakeNet {
	return &fakeNet{responders: make(map[string][]byte)}
}

func (n *fakeNet) answer(addr string, payload []byte) {
	n.mu.Lock()
	n.responders[addr] = payload
	n.mu.Unlock()
}

// dialer counts open sockets; each query owns exactly one socket for its
// lifetime, so the peak open count equals the peak in-flight query count.
func (n *fakeNet) dialer() query.Dialer {
	return func() (query.PacketConn, error) {
		open := n.open.Add(1)
		for {
			peak := n.maxOpen.Load()
			if open <= peak || n.maxOpen.CompareAndSwap(peak, open) {
				break
			}
		}

		return &fakeNetConn{net: n, inbox: make(chan fakePacket, 4), closed: make(chan struct{})}, nil
	}
}

type fakePacket struct {
	data []byte
	from net.Addr
}

type fakeNetConn struct {
	net    *fakeNet
	inbox  chan fakePacket
	closed chan struct{}

	mu       sync.Mutex
	deadline time.Time
	done     bool
}

func (c *fakeNetConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.net.mu.Lock()
	payload, ok := c.net.responders[addr.String()]
	c.net.mu.Unlock()

	if ok {
		go func() {
			// Simulated network latency keeps many probes in flight.
			time.Sleep(2 * time.Millisecond)
			select {
			case c.inbox <- fakePacket{data: payload, from: addr}:
			case <-c.closed:
			}
		}()
	}

	return len(p), nil
}

func (c *fakeNetConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeout = t.C
	}

	select {
	case pkt := <-c.inbox:
		n := copy(p, pkt.data)
		return n, pkt.from, nil
	case <-timeout:
		return 0, nil, os.ErrDeadlineExceeded
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeNetConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()

	return nil
}

func (c *fakeNetConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.done {
		c.done = true
		close(c.closed)
		c.net.open.Add(-1)
	}

	return nil
}

func oneInterface(cidr string) func() ([]models.NetworkInterface, error) {
	return func() ([]models.NetworkInterface, error) {
		return []models.NetworkInterface{{Name: "eth0", IP: "192.168.1.10", CIDR: cidr}}, nil
	}
}

func scanConfig(maxConcurrent int) models.ScanConfiguration {
	return models.ScanConfiguration{
		PortStart:     10666,
		PortEnd:       10666,
		Timeout:       25 * time.Millisecond,
		MaxConcurrent: maxConcurrent,
		Interval:      time.Minute,
	}
}

func TestScanFindsSingleResponder(t *testing.T) {
	fn := newFakeNet()
	fn.answer("192.168.1.50:10666", protocol.EncodeServerInfo(&models.ServerRecord{
		RawVersion: 283,
		Name:       "Basement LAN",
		Map:        "MAP07",
	}))

	client := query.New(25*time.Millisecond, query.WithDialer(fn.dialer()), query.WithProbeMode(query.ProbeModern))
	scanner, err := NewScanner(client, scanConfig(32), WithEnumerator(oneInterface("192.168.1.0/24")))
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	results, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want exactly 1", len(results))
	}

	rec := results[0]
	if rec.Address.String() != "192.168.1.50:10666" {
		t.Errorf("address = %s, want 192.168.1.50:10666", rec.Address.String())
	}
	if rec.Name != "Basement LAN" {
		t.Errorf("name = %q, want Basement LAN", rec.Name)
	}
	if rec.Ping == nil {
		t.Error("ping = nil, want a measurement")
	}
	if !rec.Sources.Has(models.SourceLocal) {
		t.Errorf("sources = %v, want local", rec.Sources)
	}
}

// The number of simultaneously outstanding probes must never exceed the
// configured cap, measured through the instrumented socket factory.
func TestScanHonorsConcurrencyCap(t *testing.T) {
	const maxInFlight = 8

	fn := newFakeNet() // nobody answers, every probe runs to its timeout

	client := query.New(5*time.Millisecond, query.WithDialer(fn.dialer()), query.WithProbeMode(query.ProbeModern))
	scanner, err := NewScanner(client, scanConfig(maxInFlight), WithEnumerator(oneInterface("192.168.1.0/24")))
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	results, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}

	if peak := fn.maxOpen.Load(); peak > maxInFlight {
		t.Errorf("peak in-flight probes = %d, cap is %d", peak, maxInFlight)
	}
	if remaining := fn.open.Load(); remaining != 0 {
		t.Errorf("%d sockets still open after scan, want 0", remaining)
	}
}

// A sweep cut short by the caller's deadline still returns every server
// that answered before the cutoff, alongside the context error.
func TestScanKeepsPartialResultsOnDeadline(t *testing.T) {
	fn := newFakeNet()
	fn.answer("192.168.1.1:10666", protocol.EncodeServerInfo(&models.ServerRecord{
		RawVersion: 283,
		Name:       "Early Bird",
	}))

	cfg := models.ScanConfiguration{
		PortStart:     10666,
		PortEnd:       10666,
		Timeout:       100 * time.Millisecond,
		MaxConcurrent: 4,
		Interval:      time.Minute,
	}

	client := query.New(100*time.Millisecond, query.WithDialer(fn.dialer()), query.WithProbeMode(query.ProbeModern))
	scanner, err := NewScanner(client, cfg, WithEnumerator(oneInterface("192.168.1.0/24")))
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	// 254 hosts at 4 in flight cannot finish inside this deadline; the
	// responder sits in the first batch and answers immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	results, err := scanner.Scan(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Scan() error = %v, want context.DeadlineExceeded", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want the early responder despite the cutoff", len(results))
	}
	if results[0].Address.String() != "192.168.1.1:10666" {
		t.Errorf("address = %s, want 192.168.1.1:10666", results[0].Address.String())
	}
}

func TestScanRejectsOverlap(t *testing.T) {
	fn := newFakeNet()

	client := query.New(20*time.Millisecond, query.WithDialer(fn.dialer()), query.WithProbeMode(query.ProbeModern))
	scanner, err := NewScanner(client, scanConfig(8), WithEnumerator(oneInterface("192.168.1.0/24")))
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = scanner.Scan(context.Background())
		close(done)
	}()

	<-started
	for !scanner.InProgress() {
		time.Sleep(time.Millisecond)
	}

	if _, err := scanner.Scan(context.Background()); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("second Scan() error = %v, want ErrScanInProgress", err)
	}

	<-done

	if scanner.InProgress() {
		t.Error("InProgress() still true after scan finished")
	}
}

func TestScanWithNoInterfaces(t *testing.T) {
	client := query.New(5*time.Millisecond, query.WithDialer(newFakeNet().dialer()))
	scanner, err := NewScanner(client, scanConfig(4), WithEnumerator(func() ([]models.NetworkInterface, error) {
		return nil, nil
	}))
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	results, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}
}

func TestNewScannerValidatesConfig(t *testing.T) {
	client := query.New(time.Second)

	tests := []struct {
		name string
		cfg  models.ScanConfiguration
	}{
		{name: "zero port start", cfg: models.ScanConfiguration{PortEnd: 10, Timeout: time.Second, MaxConcurrent: 1}},
		{name: "end below start", cfg: models.ScanConfiguration{PortStart: 20, PortEnd: 10, Timeout: time.Second, MaxConcurrent: 1}},
		{name: "zero timeout", cfg: models.ScanConfiguration{PortStart: 1, PortEnd: 10, MaxConcurrent: 1}},
		{name: "zero concurrency", cfg: models.ScanConfiguration{PortStart: 1, PortEnd: 10, Timeout: time.Second}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewScanner(client, tc.cfg); err == nil {
				t.Fatal("NewScanner() accepted invalid configuration")
			}
		})
	}
}

// Interface snapshots are reused until their TTL expires; scan results are
// never cached, so a second scan re-probes everything.
func TestInterfaceCaching(t *testing.T) {
	calls := 0
	enum := func() ([]models.NetworkInterface, error) {
		calls++
		return []models.NetworkInterface{{Name: "eth0", CIDR: "192.168.1.0/24"}}, nil
	}

	client := query.New(5*time.Millisecond, query.WithDialer(newFakeNet().dialer()), query.WithProbeMode(query.ProbeModern))
	scanner, err := NewScanner(client, scanConfig(64), WithEnumerator(enum), WithInterfaceTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("first Scan() error = %v", err)
	}
	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("enumerator called %d times, want 1 (cached)", calls)
	}
}
