package protocol

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/openfrag/scout/internal/models"
)

const masterEntryLen = 6 // 4 byte IPv4 + 2 byte port

// DecodeMasterList decodes a master registry response: the echoed handshake
// value followed by a counted list of IPv4 address and port pairs.
func DecodeMasterList(b []byte) ([]models.Address, error) {
	if len(b) < 6 {
		return nil, ErrTruncated
	}

	if binary.LittleEndian.Uint32(b) != MasterMagic {
		return nil, ErrBadMagic
	}

	count := int(binary.LittleEndian.Uint16(b[4:]))
	body := b[6:]
	if len(body) < count*masterEntryLen {
		return nil, fmt.Errorf("%w: %d entries announced, %d bytes left", ErrTruncated, count, len(body))
	}

	addrs := make([]models.Address, 0, count)
	for i := 0; i < count; i++ {
		e := body[i*masterEntryLen:]
		ip := net.IPv4(e[0], e[1], e[2], e[3])
		port := binary.LittleEndian.Uint16(e[4:])

		addrs = append(addrs, models.Address{Host: ip.String(), Port: port})
	}

	return addrs, nil
}

// EncodeMasterList builds a master response payload, used by tests and by
// tooling that fakes a registry.
func EncodeMasterList(addrs []models.Address) []byte {
	b := make([]byte, 6, 6+len(addrs)*masterEntryLen)
	binary.LittleEndian.PutUint32(b, MasterMagic)
	binary.LittleEndian.PutUint16(b[4:], uint16(len(addrs)))

	for _, a := range addrs {
		ip := net.ParseIP(a.Host).To4()
		if ip == nil {
			ip = net.IPv4zero.To4()
		}

		entry := make([]byte, masterEntryLen)
		copy(entry, ip)
		binary.LittleEndian.PutUint16(entry[4:], a.Port)
		b = append(b, entry...)
	}

	return b
}
