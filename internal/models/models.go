// Package models defines the data structures shared between the discovery
// subsystem, the settings storage, and the HTTP API.
package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Source marks where an aggregated server entry came from. A single entry can
// carry several marks when the same address was reported by more than one
// discovery path.
type Source uint8

// Discovery sources, in merge priority order.
const (
	SourceLocal Source = 1 << iota
	SourceCustom
	SourceMaster
)

// Has reports whether the given source mark is set.
func (s Source) Has(v Source) bool {
	return s&v != 0
}

// String renders the source set as a comma separated list for the API.
func (s Source) String() string {
	var parts []string
	if s.Has(SourceLocal) {
		parts = append(parts, "local")
	}
	if s.Has(SourceCustom) {
		parts = append(parts, "custom")
	}
	if s.Has(SourceMaster) {
		parts = append(parts, "master")
	}
	if len(parts) == 0 {
		return "unknown"
	}

	return strings.Join(parts, ",")
}

// MarshalJSON encodes the source set as its string form.
func (s Source) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Address identifies one game server endpoint. Equality is textual: two
// addresses are the same iff host and port match, no name resolution is
// involved.
type Address struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// String returns the host:port form used as the deduplication key.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// ParseAddress splits a user supplied "host:port" string into an Address.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Address{}, fmt.Errorf("invalid port in address %q", s)
	}

	return Address{Host: host, Port: uint16(port)}, nil
}

// CVarType tags the value encoding of a server console variable.
type CVarType byte

// Console variable type tags as they appear on the wire.
const (
	CVarNone CVarType = iota
	CVarBool
	CVarByte
	CVarWord
	CVarInt
	CVarFloat
	CVarString
)

// CVar is one console variable exposure reported by a server.
type CVar struct {
	Name  string   `json:"name"`
	Value string   `json:"value"`
	Type  CVarType `json:"type"`
}

// DataFile is one loaded game-data file advertised by a server.
type DataFile struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Player is one connected player as reported in a full server-info response.
type Player struct {
	Name         string `json:"name"`
	ConnectedSec uint32 `json:"connected_sec"`
	Kills        int16  `json:"kills"`
	Deaths       int16  `json:"deaths"`
	Ping         int16  `json:"ping"`
	Color        byte   `json:"color"`
	Team         byte   `json:"team"`
	Spectator    bool   `json:"spectator"`
}

// Team is one scoreboard team as reported by a server.
type Team struct {
	Name  string `json:"name"`
	Score int16  `json:"score"`
	Color byte   `json:"color"`
}

// ServerRecord is the full decoded state of one queried server. Records are
// replaced wholesale by a newer query of the same address, never patched
// field by field.
type ServerRecord struct {
	QueriedAt time.Time `json:"queried_at"`

	Address Address `json:"address"`
	Name    string  `json:"name"`
	Map     string  `json:"map"`

	// Revision is the raw revision string reported by the server,
	// alongside the packed version integer it was derived from.
	Revision   string `json:"revision,omitempty"`
	RawVersion uint32 `json:"raw_version"`

	// Country is the ISO code resolved for master-derived entries,
	// empty when GeoIP is unavailable or the host is private.
	Country string `json:"country,omitempty"`

	Files   []DataFile `json:"files,omitempty"`
	CVars   []CVar     `json:"cvars,omitempty"`
	Teams   []Team     `json:"teams,omitempty"`
	Players []Player   `json:"players,omitempty"`

	// Ping is the measured round trip in milliseconds, nil until a
	// successful query has completed for this record.
	Ping *int64 `json:"ping,omitempty"`

	ScoreLimit uint16 `json:"score_limit"`
	TimeLimit  uint16 `json:"time_limit"`
	GameType   byte   `json:"game_type"`
	Passworded bool   `json:"passworded"`

	Sources Source `json:"sources"`
}

// ActivePlayers counts connected non-spectator players.
func (r *ServerRecord) ActivePlayers() int {
	n := 0
	for i := range r.Players {
		if !r.Players[i].Spectator {
			n++
		}
	}

	return n
}

// NetworkInterface is an immutable snapshot of one local interface kept for
// the duration of a discovery cycle.
type NetworkInterface struct {
	Name    string `json:"name"`
	IP      string `json:"ip"`
	Netmask string `json:"netmask"`
	CIDR    string `json:"cidr"`
}

// ScanConfiguration bounds the local network scan.
type ScanConfiguration struct {
	PortStart     uint16        `json:"port_start"`
	PortEnd       uint16        `json:"port_end"`
	Timeout       time.Duration `json:"timeout"`
	MaxConcurrent int           `json:"max_concurrent"`
	Interval      time.Duration `json:"interval"`
}

// Validate checks the configuration at the boundary before any scan uses it.
func (c ScanConfiguration) Validate() error {
	if c.PortStart < 1 {
		return fmt.Errorf("port range start %d out of bounds", c.PortStart)
	}
	if c.PortEnd < c.PortStart {
		return fmt.Errorf("port range end %d below start %d", c.PortEnd, c.PortStart)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent probes must be positive, got %d", c.MaxConcurrent)
	}

	return nil
}

// CustomServerEntry is one user-entered server address. Position is the user
// ordering for display, it has no effect on query priority.
type CustomServerEntry struct {
	Address  string `json:"address"`
	Position int    `json:"position"`
}

// AggregatedServerSet is the deduplicated union of the three discovery
// sources. Entries are ordered local first, then surviving custom entries,
// then master-derived entries.
type AggregatedServerSet struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Servers   []ServerRecord `json:"servers"`
}
