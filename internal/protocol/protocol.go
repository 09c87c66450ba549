// Package protocol implements the launcher side of the game's UDP wire
// format: challenge encoding and tagged response decoding. It performs no
// I/O; callers hand in raw datagrams and get structured values back.
package protocol

import (
	"encoding/binary"
	"errors"
)

// Wire constants. These must match the servers bit for bit, see the protocol
// notes in the repository docs before touching any of them.
const (
	// ResponseTag is the 12 bit marker carried in bits 20-31 of the first
	// little-endian word of every valid server response.
	ResponseTag = 0xAD0

	// MasterMagic is the master registry handshake value, sent in the
	// challenge and echoed back in front of the address list.
	MasterMagic uint32 = 777123

	// ChallengeInfo requests a full server-info response.
	ChallengeInfo uint32 = 0xAD011002

	// ChallengeVersion requests the lightweight version-only response.
	ChallengeVersion uint32 = 0xAD011001

	tagShift = 20
	tagMask  = 0xFFF
	kindMask = 0xFFFFF

	// KindVersion and KindInfo are the response kinds carried in the low
	// 20 bits of the first word, mirroring the challenge values.
	KindVersion = ChallengeVersion & kindMask
	KindInfo    = ChallengeInfo & kindMask

	// headerLen is the minimum length of any tagged response: the tag
	// word plus the packed version word.
	headerLen = 8
)

// LegacyProbe is the 4 byte probe older servers answer to. Newer servers
// ignore it, so it can be sent alongside the tagged challenge.
var LegacyProbe = []byte{0x00, 0x00, 0x00, 0xAD}

// Decode failures. All malformed input maps onto one of these, decoding
// never panics.
var (
	// ErrTruncated marks a buffer too short for the header or cut off in
	// the middle of a field.
	ErrTruncated = errors.New("protocol: truncated response")

	// ErrInvalidTag marks a response whose first word does not carry the
	// protocol tag.
	ErrInvalidTag = errors.New("protocol: invalid response tag")

	// ErrBadMagic marks a master response that does not echo the
	// handshake value.
	ErrBadMagic = errors.New("protocol: bad master magic")
)

// Envelope is a validated response header with its payload still undecoded.
type Envelope struct {
	Payload []byte

	// Kind is the response kind from the low 20 bits of the tag word.
	Kind uint32

	// RawVersion is the packed protocol version integer from the second
	// word. Feed it to VersionMajor and friends.
	RawVersion uint32
}

// EncodeMasterChallenge builds the master-list challenge packet.
func EncodeMasterChallenge() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, MasterMagic)

	return b
}

// EncodeServerChallenge builds a game server challenge packet, either the
// version-only variant or the full server-info variant.
func EncodeServerChallenge(versionOnly bool) []byte {
	v := ChallengeInfo
	if versionOnly {
		v = ChallengeVersion
	}

	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}

// DecodeResponse validates the tag of a raw datagram and splits it into an
// envelope. Callers treat any error here the same as no response at all.
func DecodeResponse(b []byte) (*Envelope, error) {
	if len(b) < headerLen {
		return nil, ErrTruncated
	}

	word := binary.LittleEndian.Uint32(b)
	if (word>>tagShift)&tagMask != ResponseTag {
		return nil, ErrInvalidTag
	}

	return &Envelope{
		Kind:       word & kindMask,
		RawVersion: binary.LittleEndian.Uint32(b[4:]),
		Payload:    b[headerLen:],
	}, nil
}
