package protocol

import (
	"fmt"
	"strconv"

	"github.com/openfrag/scout/internal/models"
)

// DecodeServerInfo decodes a full server-info payload into a ServerRecord.
// The field walk is all or nothing: a short field anywhere aborts with
// ErrTruncated and no partial record is ever returned.
func DecodeServerInfo(env *Envelope) (*models.ServerRecord, error) {
	if env.Kind != KindInfo {
		return nil, fmt.Errorf("%w: kind 0x%x is not a server-info response", ErrInvalidTag, env.Kind)
	}

	r := &reader{buf: env.Payload}
	rec := &models.ServerRecord{RawVersion: env.RawVersion}

	rec.Name = r.str()
	rec.Map = r.str()
	rec.GameType = r.byte()

	// The password hash itself is read to advance the cursor but never
	// stored, only its presence matters to the launcher.
	if r.byte() != 0 {
		rec.Passworded = true
		_ = r.str()
	}

	rec.ScoreLimit = r.uint16()
	rec.TimeLimit = r.uint16()
	rec.Revision = r.str()

	nFiles := int(r.byte())
	for i := 0; i < nFiles && !r.failed(); i++ {
		rec.Files = append(rec.Files, models.DataFile{
			Name: r.str(),
			Hash: r.str(),
		})
	}

	nCVars := int(r.byte())
	for i := 0; i < nCVars && !r.failed(); i++ {
		cv := models.CVar{Name: r.str(), Type: models.CVarType(r.byte())}
		cv.Value = readCVarValue(r, cv.Type)
		rec.CVars = append(rec.CVars, cv)
	}

	nTeams := int(r.byte())
	for i := 0; i < nTeams && !r.failed(); i++ {
		rec.Teams = append(rec.Teams, models.Team{
			Name:  r.str(),
			Color: r.byte(),
			Score: r.int16(),
		})
	}

	nPlayers := int(r.byte())
	for i := 0; i < nPlayers && !r.failed(); i++ {
		p := models.Player{
			Name:         r.str(),
			Color:        r.byte(),
			Kills:        r.int16(),
			Deaths:       r.int16(),
			ConnectedSec: r.uint32(),
			Ping:         r.int16(),
			Team:         r.byte(),
		}
		p.Spectator = r.byte() != 0
		rec.Players = append(rec.Players, p)
	}

	if r.failed() {
		return nil, ErrTruncated
	}

	return rec, nil
}

// DecodeVersion decodes a version-only payload. The revision string is
// optional, older servers answer with a bare header.
func DecodeVersion(env *Envelope) (*models.ServerRecord, error) {
	if env.Kind != KindVersion {
		return nil, fmt.Errorf("%w: kind 0x%x is not a version response", ErrInvalidTag, env.Kind)
	}

	rec := &models.ServerRecord{RawVersion: env.RawVersion}

	if len(env.Payload) > 0 {
		r := &reader{buf: env.Payload}
		rev := r.str()
		if r.failed() {
			return nil, ErrTruncated
		}
		rec.Revision = rev
	}

	return rec, nil
}

func readCVarValue(r *reader, t models.CVarType) string {
	switch t {
	case models.CVarNone:
		return ""
	case models.CVarBool:
		if r.byte() != 0 {
			return "true"
		}
		return "false"
	case models.CVarByte:
		return strconv.Itoa(int(r.byte()))
	case models.CVarWord:
		return strconv.Itoa(int(r.uint16()))
	case models.CVarInt:
		return strconv.Itoa(int(r.int32()))
	case models.CVarFloat:
		return strconv.FormatFloat(float64(r.float32()), 'g', -1, 32)
	case models.CVarString:
		return r.str()
	default:
		// Unknown tag means the cursor position is lost for every
		// following field, treat it as a framing failure.
		r.fail = true
		return ""
	}
}
