package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/openfrag/scout/internal/models"
)

func TestDecodeResponseTagValidation(t *testing.T) {
	valid := make([]byte, 8)
	binary.LittleEndian.PutUint32(valid, ResponseTag<<tagShift|KindInfo)

	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{name: "empty", buf: nil, wantErr: ErrTruncated},
		{name: "short header", buf: []byte{0x02, 0x10, 0x01, 0xAD, 0x00}, wantErr: ErrTruncated},
		{name: "seven bytes", buf: make([]byte, 7), wantErr: ErrTruncated},
		{name: "zero word", buf: make([]byte, 8), wantErr: ErrInvalidTag},
		{name: "valid info header", buf: valid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeResponse(tc.buf)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("DecodeResponse() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// Any first word whose bits 20-31 are not the protocol tag must be rejected,
// regardless of the rest of the buffer.
func TestDecodeResponseRejectsForeignTags(t *testing.T) {
	buf := make([]byte, 64)

	for tag := uint32(0); tag <= 0xFFF; tag++ {
		word := tag<<tagShift | KindInfo
		binary.LittleEndian.PutUint32(buf, word)

		_, err := DecodeResponse(buf)
		if tag == ResponseTag {
			if err != nil {
				t.Fatalf("tag 0x%03X: unexpected error %v", tag, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTag) {
			t.Fatalf("tag 0x%03X: error = %v, want ErrInvalidTag", tag, err)
		}
	}
}

func TestDecodeResponseEnvelope(t *testing.T) {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint32(buf, ResponseTag<<tagShift|KindVersion)
	binary.LittleEndian.PutUint32(buf[4:], 283)
	buf[8] = 0xDE
	buf[9] = 0xAD

	env, err := DecodeResponse(buf)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if env.Kind != KindVersion {
		t.Errorf("Kind = 0x%X, want 0x%X", env.Kind, KindVersion)
	}
	if env.RawVersion != 283 {
		t.Errorf("RawVersion = %d, want 283", env.RawVersion)
	}
	if len(env.Payload) != 2 || env.Payload[0] != 0xDE {
		t.Errorf("Payload = %v, want trailing two bytes", env.Payload)
	}
}

func TestVersionMath(t *testing.T) {
	tests := []struct {
		v                   int
		major, minor, patch int
	}{
		{v: 260, major: 1, minor: 0, patch: 4},
		{v: 83, major: 0, minor: 8, patch: 3},
		{v: 0, major: 0, minor: 0, patch: 0},
		{v: 255, major: 0, minor: 25, patch: 5},
		{v: 283, major: 1, minor: 2, patch: 7},
	}

	for _, tc := range tests {
		if got := VersionMajor(tc.v); got != tc.major {
			t.Errorf("VersionMajor(%d) = %d, want %d", tc.v, got, tc.major)
		}
		if got := VersionMinor(tc.v); got != tc.minor {
			t.Errorf("VersionMinor(%d) = %d, want %d", tc.v, got, tc.minor)
		}
		if got := VersionPatch(tc.v); got != tc.patch {
			t.Errorf("VersionPatch(%d) = %d, want %d", tc.v, got, tc.patch)
		}
	}
}

func TestEncodeChallenges(t *testing.T) {
	if got := binary.LittleEndian.Uint32(EncodeMasterChallenge()); got != 777123 {
		t.Errorf("master challenge = %d, want 777123", got)
	}
	if got := binary.LittleEndian.Uint32(EncodeServerChallenge(false)); got != 0xAD011002 {
		t.Errorf("info challenge = 0x%X, want 0xAD011002", got)
	}
	if got := binary.LittleEndian.Uint32(EncodeServerChallenge(true)); got != 0xAD011001 {
		t.Errorf("version challenge = 0x%X, want 0xAD011001", got)
	}
	want := []byte{0x00, 0x00, 0x00, 0xAD}
	for i, b := range LegacyProbe {
		if b != want[i] {
			t.Fatalf("legacy probe = %v, want %v", LegacyProbe, want)
		}
	}
}

func testRecord() *models.ServerRecord {
	return &models.ServerRecord{
		RawVersion: 283,
		Name:       "Midnight Frag Den",
		Map:        "MAP01",
		GameType:   2,
		Passworded: true,
		ScoreLimit: 20,
		TimeLimit:  15,
		Revision:   "r2831",
		Files: []models.DataFile{
			{Name: "standard.wad", Hash: "0123abcd"},
			{Name: "extras.wad", Hash: "feedbeef"},
		},
		CVars: []models.CVar{
			{Name: "sv_friendlyfire", Type: models.CVarBool, Value: "true"},
			{Name: "sv_maxclients", Type: models.CVarByte, Value: "16"},
			{Name: "sv_fraglimit", Type: models.CVarWord, Value: "300"},
			{Name: "sv_gravity", Type: models.CVarFloat, Value: "0.5"},
			{Name: "sv_motd", Type: models.CVarString, Value: "welcome"},
		},
		Teams: []models.Team{
			{Name: "Red", Color: 1, Score: 10},
			{Name: "Blue", Color: 2, Score: -3},
		},
		Players: []models.Player{
			{Name: "meat", Color: 4, Kills: 12, Deaths: 3, ConnectedSec: 600, Ping: 42, Team: 1},
			{Name: "ghost", Color: 7, Kills: 0, Deaths: 0, ConnectedSec: 30, Ping: 15, Team: 0, Spectator: true},
		},
	}
}

func TestServerInfoRoundTrip(t *testing.T) {
	want := testRecord()

	env, err := DecodeResponse(EncodeServerInfo(want))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}

	got, err := DecodeServerInfo(env)
	if err != nil {
		t.Fatalf("DecodeServerInfo() error = %v", err)
	}

	if got.Name != want.Name || got.Map != want.Map {
		t.Errorf("name/map = %q/%q, want %q/%q", got.Name, got.Map, want.Name, want.Map)
	}
	if got.GameType != want.GameType || !got.Passworded {
		t.Errorf("gametype/passworded = %d/%v, want %d/true", got.GameType, got.Passworded, want.GameType)
	}
	if got.ScoreLimit != want.ScoreLimit || got.TimeLimit != want.TimeLimit {
		t.Errorf("limits = %d/%d, want %d/%d", got.ScoreLimit, got.TimeLimit, want.ScoreLimit, want.TimeLimit)
	}
	if got.Revision != want.Revision || got.RawVersion != want.RawVersion {
		t.Errorf("revision = %q/%d, want %q/%d", got.Revision, got.RawVersion, want.Revision, want.RawVersion)
	}
	if len(got.Files) != 2 || got.Files[0] != want.Files[0] || got.Files[1] != want.Files[1] {
		t.Errorf("files = %v, want %v", got.Files, want.Files)
	}
	if len(got.CVars) != len(want.CVars) {
		t.Fatalf("cvars = %d entries, want %d", len(got.CVars), len(want.CVars))
	}
	for i := range want.CVars {
		if got.CVars[i] != want.CVars[i] {
			t.Errorf("cvar[%d] = %+v, want %+v", i, got.CVars[i], want.CVars[i])
		}
	}
	if len(got.Teams) != 2 || got.Teams[1].Score != -3 {
		t.Errorf("teams = %v, want %v", got.Teams, want.Teams)
	}
	if len(got.Players) != 2 || got.Players[0] != want.Players[0] || !got.Players[1].Spectator {
		t.Errorf("players = %v, want %v", got.Players, want.Players)
	}
	if got.ActivePlayers() != 1 {
		t.Errorf("ActivePlayers() = %d, want 1", got.ActivePlayers())
	}
}

// A buffer cut at any point inside the payload must abort the whole decode,
// never produce a partial record.
func TestServerInfoTruncationAborts(t *testing.T) {
	full := EncodeServerInfo(testRecord())

	for cut := 8; cut < len(full); cut++ {
		env, err := DecodeResponse(full[:cut])
		if err != nil {
			t.Fatalf("cut %d: header rejected: %v", cut, err)
		}

		if _, err := DecodeServerInfo(env); !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut %d: error = %v, want ErrTruncated", cut, err)
		}
	}
}

func TestDecodeVersionResponse(t *testing.T) {
	env, err := DecodeResponse(EncodeVersionResponse(260, "r2600"))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}

	rec, err := DecodeVersion(env)
	if err != nil {
		t.Fatalf("DecodeVersion() error = %v", err)
	}
	if rec.RawVersion != 260 || rec.Revision != "r2600" {
		t.Errorf("got %d/%q, want 260/r2600", rec.RawVersion, rec.Revision)
	}

	// Bare header without a revision string is valid for old servers.
	bare := make([]byte, 8)
	binary.LittleEndian.PutUint32(bare, ResponseTag<<tagShift|KindVersion)
	binary.LittleEndian.PutUint32(bare[4:], 83)

	env, err = DecodeResponse(bare)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	rec, err = DecodeVersion(env)
	if err != nil {
		t.Fatalf("DecodeVersion() bare error = %v", err)
	}
	if rec.RawVersion != 83 || rec.Revision != "" {
		t.Errorf("bare got %d/%q, want 83 and empty revision", rec.RawVersion, rec.Revision)
	}
}

func TestMasterListRoundTrip(t *testing.T) {
	want := []models.Address{
		{Host: "203.0.113.4", Port: 10666},
		{Host: "198.51.100.77", Port: 25000},
	}

	got, err := DecodeMasterList(EncodeMasterList(want))
	if err != nil {
		t.Fatalf("DecodeMasterList() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d addresses, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("addr[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeMasterListErrors(t *testing.T) {
	short := EncodeMasterList([]models.Address{{Host: "203.0.113.4", Port: 10666}})

	wrongMagic := append([]byte(nil), short...)
	binary.LittleEndian.PutUint32(wrongMagic, 777124)

	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{name: "too short", buf: short[:5], wantErr: ErrTruncated},
		{name: "wrong magic", buf: wrongMagic, wantErr: ErrBadMagic},
		{name: "count exceeds body", buf: short[:len(short)-2], wantErr: ErrTruncated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeMasterList(tc.buf); !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
