package protocol

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/openfrag/scout/internal/models"
)

// writer is the encoding counterpart of reader. Strings longer than 255
// bytes are silently clipped to fit the length prefix.
type writer struct {
	buf []byte
}

func (w *writer) byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) str(s string) {
	if len(s) > 255 {
		s = s[:255]
	}

	w.byte(byte(len(s)))
	w.buf = append(w.buf, s...)
}

// EncodeServerInfo builds a complete tagged server-info response for the
// given record. The launcher itself never sends one, it exists for the fake
// transport in tests and for the bundled protocol tooling.
func EncodeServerInfo(rec *models.ServerRecord) []byte {
	w := &writer{}

	w.uint32(ResponseTag<<tagShift | KindInfo)
	w.uint32(rec.RawVersion)

	w.str(rec.Name)
	w.str(rec.Map)
	w.byte(rec.GameType)

	if rec.Passworded {
		w.byte(1)
		w.str("*") // placeholder hash, never surfaced by the decoder
	} else {
		w.byte(0)
	}

	w.uint16(rec.ScoreLimit)
	w.uint16(rec.TimeLimit)
	w.str(rec.Revision)

	w.byte(byte(len(rec.Files)))
	for _, f := range rec.Files {
		w.str(f.Name)
		w.str(f.Hash)
	}

	w.byte(byte(len(rec.CVars)))
	for _, cv := range rec.CVars {
		w.str(cv.Name)
		w.byte(byte(cv.Type))
		writeCVarValue(w, cv)
	}

	w.byte(byte(len(rec.Teams)))
	for _, t := range rec.Teams {
		w.str(t.Name)
		w.byte(t.Color)
		w.uint16(uint16(t.Score))
	}

	w.byte(byte(len(rec.Players)))
	for _, p := range rec.Players {
		w.str(p.Name)
		w.byte(p.Color)
		w.uint16(uint16(p.Kills))
		w.uint16(uint16(p.Deaths))
		w.uint32(p.ConnectedSec)
		w.uint16(uint16(p.Ping))
		w.byte(p.Team)
		if p.Spectator {
			w.byte(1)
		} else {
			w.byte(0)
		}
	}

	return w.buf
}

// EncodeVersionResponse builds a tagged version-only response.
func EncodeVersionResponse(rawVersion uint32, revision string) []byte {
	w := &writer{}

	w.uint32(ResponseTag<<tagShift | KindVersion)
	w.uint32(rawVersion)
	w.str(revision)

	return w.buf
}

func writeCVarValue(w *writer, cv models.CVar) {
	switch cv.Type {
	case models.CVarNone:
	case models.CVarBool:
		if cv.Value == "true" {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case models.CVarByte:
		n, _ := strconv.Atoi(cv.Value)
		w.byte(byte(n))
	case models.CVarWord:
		n, _ := strconv.Atoi(cv.Value)
		w.uint16(uint16(n))
	case models.CVarInt:
		n, _ := strconv.Atoi(cv.Value)
		w.uint32(uint32(int32(n)))
	case models.CVarFloat:
		f, _ := strconv.ParseFloat(cv.Value, 32)
		w.uint32(math.Float32bits(float32(f)))
	case models.CVarString:
		w.str(cv.Value)
	}
}
