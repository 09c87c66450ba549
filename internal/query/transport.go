// Package query implements single request/response exchanges against game
// servers and the master registry over UDP. Each exchange owns its own
// socket for its own lifetime and releases it on every exit path.
package query

import (
	"net"
	"time"
)

// PacketConn is the subset of net.PacketConn the query clients need. It
// exists so tests can substitute an in-memory fake for the real socket.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a fresh unconnected packet socket. The default binds an
// ephemeral UDPv4 port on all interfaces.
type Dialer func() (PacketConn, error)

// UDPDialer is the production Dialer backed by the operating system.
func UDPDialer() (PacketConn, error) {
	return net.ListenPacket("udp4", ":0")
}
