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

// QueryMaster fetches the current registered server list from the master
// registry. An unreachable or misbehaving master is a per-cycle outcome, not
// a fatal condition; the caller shows the error and carries on with the
// other sources.
func (c *Client) QueryMaster(ctx context.Context, host string, port uint16) ([]models.Address, error) {
	target, err := net.ResolveUDPAddr("udp4", models.Address{Host: host, Port: port}.String())
	if err != nil {
		return nil, fmt.Errorf("%w: resolve master %s: %s", ErrTransport, host, err)
	}

	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if _, err := conn.WriteTo(protocol.EncodeMasterChallenge(), target); err != nil {
		return nil, fmt.Errorf("%w: send: %s", ErrTransport, err)
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

		if from.String() != target.String() {
			log.Trace().Str("from", from.String()).Msg("Discarding datagram from foreign endpoint")
			continue
		}

		addrs, err := protocol.DecodeMasterList(buf[:n])
		if err != nil {
			if errors.Is(err, protocol.ErrBadMagic) {
				// Stray traffic on our ephemeral port, the real
				// answer may still be on the way.
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrProtocol, err)
		}

		return addrs, nil
	}
}
