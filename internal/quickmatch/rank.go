// Package quickmatch picks the single best joinable server from an
// aggregated set without user browsing.
package quickmatch

import (
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/models"
	"github.com/openfrag/scout/internal/protocol"
)

// pingPenalty substitutes for a missing round-trip measurement in the score.
// Unmeasured servers are never excluded by the ping ceiling, they just rank
// behind anything with a real measurement.
const pingPenalty = 999

// playerScoreCap caps the player contribution so a packed 32 slot server
// does not drown out every latency difference.
const playerScoreCap = 8

// Criteria is the user's quick-match preference set.
type Criteria struct {
	// GameTypes restricts matches to the listed game-type codes.
	// Empty means any.
	GameTypes []byte `json:"game_types,omitempty"`

	// MinPlayers and MaxPlayers bound the active (non-spectator) player
	// count. MaxPlayers 0 means unbounded.
	MinPlayers int `json:"min_players"`
	MaxPlayers int `json:"max_players"`

	// MaxPing excludes servers whose measured round trip exceeds the
	// ceiling in milliseconds. 0 means no ceiling. Servers without a
	// measurement are never excluded on this basis.
	MaxPing int64 `json:"max_ping"`

	// ClientMajor and ClientMinor are the protocol version of the local
	// game client. A server is compatible when its major matches and its
	// minor does not exceed the client's.
	ClientMajor int `json:"client_major"`
	ClientMinor int `json:"client_minor"`

	// AllowEmpty admits servers with nobody on them.
	AllowEmpty bool `json:"allow_empty"`

	// AllowPassworded admits password-protected servers.
	AllowPassworded bool `json:"allow_passworded"`
}

// Rank filters servers by the criteria and returns the highest scoring
// survivor, or nil when nothing qualifies. Ties go to the earlier entry in
// the input list.
func Rank(servers []models.ServerRecord, c Criteria, owned map[uint64]struct{}) *models.ServerRecord {
	var (
		best      *models.ServerRecord
		bestScore int64
	)

	for i := range servers {
		srv := &servers[i]
		if !admit(srv, c, owned) {
			continue
		}

		score := Score(srv)
		if best == nil || score > bestScore {
			best = srv
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}

	log.Debug().
		Str("addr", best.Address.String()).
		Str("name", best.Name).
		Int64("score", bestScore).
		Msg("Quick match selected")

	picked := *best

	return &picked
}

// Score rates one server: capped active player count weighted against the
// measured round trip.
func Score(srv *models.ServerRecord) int64 {
	ping := int64(pingPenalty)
	if srv.Ping != nil {
		ping = *srv.Ping
	}

	players := int64(srv.ActivePlayers())
	if players > playerScoreCap {
		players = playerScoreCap
	}

	return players*10 - ping/10
}

// admit applies the exclusion filters in their documented order.
func admit(srv *models.ServerRecord, c Criteria, owned map[uint64]struct{}) bool {
	active := srv.ActivePlayers()

	if len(srv.Players) == 0 && !c.AllowEmpty {
		return false
	}

	if active < c.MinPlayers {
		return false
	}
	if c.MaxPlayers > 0 && active > c.MaxPlayers {
		return false
	}

	major := protocol.VersionMajor(int(srv.RawVersion))
	minor := protocol.VersionMinor(int(srv.RawVersion))
	if major != c.ClientMajor || minor > c.ClientMinor {
		return false
	}

	if len(c.GameTypes) > 0 && !containsByte(c.GameTypes, srv.GameType) {
		return false
	}

	// The first advertised data file is the base game data the server
	// requires; without a matching local copy the server is unjoinable.
	if owned != nil && len(srv.Files) > 0 {
		if _, ok := owned[xxhash.Sum64String(srv.Files[0].Name)]; !ok {
			return false
		}
	}

	if srv.Passworded && !c.AllowPassworded {
		return false
	}

	if c.MaxPing > 0 && srv.Ping != nil && *srv.Ping > c.MaxPing {
		return false
	}

	return true
}

func containsByte(set []byte, v byte) bool {
	for _, b := range set {
		if b == v {
			return true
		}
	}

	return false
}
