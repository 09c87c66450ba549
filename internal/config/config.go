// Package config handles the parsing and validation of application
// configuration from command-line arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/openfrag/scout/internal/logger"
	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/protocol"
	"github.com/openfrag/scout/internal/quickmatch"
	"github.com/openfrag/scout/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server     Server        `group:"Server Options" env-namespace:"SCOUT"`
	Scan       Scan          `group:"LAN Scan Options" namespace:"scan" env-namespace:"SCOUT_SCAN"`
	Master     Master        `group:"Master Registry Options" namespace:"master" env-namespace:"SCOUT_MASTER"`
	QuickMatch QuickMatch    `group:"Quick Match Options" namespace:"qm" env-namespace:"SCOUT_QM"`
	Storage    Storage       `group:"Storage Options" namespace:"db" env-namespace:"SCOUT_DB"`
	GeoIP      GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"SCOUT_GEOIP"`
	Logger     logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SCOUT_LOG"`

	ScanOnce  bool `long:"scan-once" description:"Run a single LAN scan, print the results and exit"`
	MatchOnce bool `long:"quick-match" description:"Run one discovery cycle, print the best server and exit"`
	Version   bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds the HTTP API configuration for the UI layer.
type Server struct {
	Address string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"API listen address" default:"127.0.0.1:8666"`

	RateCount  int           `long:"rate-count" env:"RATE_COUNT" description:"Per-IP API rate limit: requests count" default:"30"`
	RateWindow time.Duration `long:"rate-window" env:"RATE_WINDOW" description:"Per-IP API rate limit: window duration" default:"1m"`
}

// Scan holds the local network scan configuration.
type Scan struct {
	// betteralign:ignore

	PortStart     uint16        `long:"port-start" env:"PORT_START" description:"First game port to probe" default:"10666"`
	PortEnd       uint16        `long:"port-end" env:"PORT_END" description:"Last game port to probe (inclusive)" default:"10676"`
	Timeout       time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-probe timeout" default:"750ms"`
	MaxConcurrent int           `long:"concurrency" env:"CONCURRENCY" description:"Max UDP probes in flight" default:"64"`
	Interval      time.Duration `long:"interval" env:"INTERVAL" description:"LAN rescan interval" default:"30s"`
	ProbeRate     int           `long:"probe-rate" env:"PROBE_RATE" description:"Probe pacing in packets per second, 0 for unpaced" default:"0"`
	Probe         string        `long:"probe" env:"PROBE" description:"Challenge variant to send" default:"both" choice:"both" choice:"modern" choice:"legacy"`
	InterfaceTTL  time.Duration `long:"iface-ttl" env:"IFACE_TTL" description:"How long detected interfaces are cached" default:"48h"`
}

// Configuration converts the flag group into the validated scan model.
func (s Scan) Configuration() models.ScanConfiguration {
	return models.ScanConfiguration{
		PortStart:     s.PortStart,
		PortEnd:       s.PortEnd,
		Timeout:       s.Timeout,
		MaxConcurrent: s.MaxConcurrent,
		Interval:      s.Interval,
	}
}

// Master holds the master registry configuration. The query timeout is
// separate from the LAN probe timeout: registry and custom entries live on
// the WAN and need more headroom than a local subnet probe.
type Master struct {
	Host     string        `long:"host" env:"HOST" description:"Master registry host" default:"master.openfrag.net"`
	Port     uint16        `long:"port" env:"PORT" description:"Master registry port" default:"25665"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Master list refresh interval" default:"5m"`
	Timeout  time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-query timeout for master and custom server queries" default:"2s"`
}

// QuickMatch holds the default quick-match criteria; persisted overrides in
// storage take precedence at runtime.
type QuickMatch struct {
	// betteralign:ignore

	MinPlayers    int   `long:"min-players" env:"MIN_PLAYERS" description:"Minimum active players" default:"0"`
	MaxPlayers    int   `long:"max-players" env:"MAX_PLAYERS" description:"Maximum active players, 0 for unbounded" default:"0"`
	MaxPing       int64 `long:"max-ping" env:"MAX_PING" description:"Ping ceiling in milliseconds, 0 for none" default:"250"`
	GameTypes     []int `long:"game-type" env:"GAME_TYPES" env-delim:"," description:"Preferred game-type codes, empty for any"`
	ClientVersion int   `long:"client-version" env:"CLIENT_VERSION" description:"Packed protocol version of the local game client" default:"283"`
	AllowEmpty    bool  `long:"allow-empty" env:"ALLOW_EMPTY" description:"Admit empty servers"`
	AllowLocked   bool  `long:"allow-passworded" env:"ALLOW_PASSWORDED" description:"Admit password-protected servers"`
}

// Criteria converts the flag group into ranker criteria, deriving the
// client's major/minor from the packed version flag.
func (q QuickMatch) Criteria() quickmatch.Criteria {
	types := make([]byte, 0, len(q.GameTypes))
	for _, t := range q.GameTypes {
		types = append(types, byte(t))
	}

	return quickmatch.Criteria{
		GameTypes:       types,
		MinPlayers:      q.MinPlayers,
		MaxPlayers:      q.MaxPlayers,
		MaxPing:         q.MaxPing,
		ClientMajor:     protocol.VersionMajor(q.ClientVersion),
		ClientMinor:     protocol.VersionMinor(q.ClientVersion),
		AllowEmpty:      q.AllowEmpty,
		AllowPassworded: q.AllowLocked,
	}
}

// Storage holds database configuration.
type Storage struct {
	Path string `short:"d" long:"path" env:"PATH" description:"Path to SQLite settings database" default:"scout.db"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"scout.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Disable country resolution entirely"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the
// help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if err := cfg.Scan.Configuration().Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scan configuration: %s\n", err)
		os.Exit(1)
	}

	return &cfg
}
