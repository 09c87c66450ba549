package query

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/protocol"
)

// Query failure taxonomy. All three are recoverable "this server did not
// answer" outcomes, callers never escalate them past a log line.
var (
	// ErrTimeout means no valid response arrived within the deadline.
	ErrTimeout = errors.New("query: timeout")

	// ErrTransport means the socket could not be created, bound or
	// written to.
	ErrTransport = errors.New("query: transport failure")

	// ErrProtocol means a datagram arrived from the right endpoint but
	// failed shape validation.
	ErrProtocol = errors.New("query: protocol violation")
)

// ProbeMode selects which challenge variant(s) a query sends. Two server
// generations coexist in the wild: older ones only answer the 4 byte legacy
// probe, newer ones only the tagged challenge.
type ProbeMode int

// Probe variants.
const (
	ProbeBoth ProbeMode = iota
	ProbeModern
	ProbeLegacy
)

// ParseProbeMode maps a configuration string onto a ProbeMode.
func ParseProbeMode(s string) (ProbeMode, error) {
	switch s {
	case "", "both":
		return ProbeBoth, nil
	case "modern":
		return ProbeModern, nil
	case "legacy":
		return ProbeLegacy, nil
	default:
		return ProbeBoth, fmt.Errorf("unknown probe mode %q", s)
	}
}

// Client performs one-shot queries. The zero value is not usable, construct
// it with New.
type Client struct {
	dial       Dialer
	timeout    time.Duration
	bufferSize int
	probe      ProbeMode
}

// Option tweaks a Client at construction time.
type Option func(*Client)

// WithDialer substitutes the socket factory, used by tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithBufferSize overrides the receive buffer size.
func WithBufferSize(n int) Option {
	return func(c *Client) { c.bufferSize = n }
}

// WithProbeMode selects the challenge variant(s) sent per query.
func WithProbeMode(m ProbeMode) Option {
	return func(c *Client) { c.probe = m }
}

// New creates a query client with the given per-query timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		dial:       UDPDialer,
		timeout:    timeout,
		bufferSize: 1400,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Timeout returns the per-query deadline the client was built with.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Query sends a full server-info challenge to one address and waits for a
// valid tagged response, measuring the round trip. Datagrams from any other
// endpoint and datagrams failing the tag check are discarded and the wait
// continues until the deadline.
func (c *Client) Query(ctx context.Context, addr models.Address) (*models.ServerRecord, error) {
	return c.query(ctx, addr, false)
}

// QueryVersion sends the lightweight version-only challenge. The returned
// record carries only the version fields.
func (c *Client) QueryVersion(ctx context.Context, addr models.Address) (*models.ServerRecord, error) {
	return c.query(ctx, addr, true)
}

func (c *Client) query(ctx context.Context, addr models.Address, versionOnly bool) (*models.ServerRecord, error) {
	target, err := net.ResolveUDPAddr("udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %s", ErrTransport, addr, err)
	}

	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	defer func() { _ = conn.Close() }()

	start := time.Now()
	deadline := start.Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if c.probe != ProbeLegacy {
		if _, err := conn.WriteTo(protocol.EncodeServerChallenge(versionOnly), target); err != nil {
			return nil, fmt.Errorf("%w: send: %s", ErrTransport, err)
		}
	}
	if c.probe != ProbeModern {
		if _, err := conn.WriteTo(protocol.LegacyProbe, target); err != nil {
			return nil, fmt.Errorf("%w: send: %s", ErrTransport, err)
		}
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}

	buf := make([]byte, c.bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, err)
		}

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: recv: %s", ErrTransport, err)
		}

		// Late or spoofed packets from earlier probes must never be
		// attributed to this query.
		if from.String() != target.String() {
			log.Trace().Str("from", from.String()).Str("want", target.String()).
				Msg("Discarding datagram from foreign endpoint")
			continue
		}

		env, err := protocol.DecodeResponse(buf[:n])
		if err != nil {
			// Not protocol traffic, keep waiting for a real answer.
			log.Trace().Err(err).Str("addr", addr.String()).Msg("Discarding untagged datagram")
			continue
		}

		rec, err := decodeEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrProtocol, err)
		}

		ping := time.Since(start).Milliseconds()
		rec.Ping = &ping
		rec.Address = addr
		rec.QueriedAt = time.Now()

		return rec, nil
	}
}

func decodeEnvelope(env *protocol.Envelope) (*models.ServerRecord, error) {
	// A server answering a full-info challenge with a version reply (or
	// the other way round) is decoded by what it actually sent, which
	// covers legacy servers answering the 4 byte probe.
	if env.Kind == protocol.KindVersion {
		return protocol.DecodeVersion(env)
	}

	return protocol.DecodeServerInfo(env)
}
