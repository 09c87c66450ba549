package protocol

import (
	"encoding/binary"
	"math"
)

// reader walks a response payload with sticky error semantics: after the
// first short read every further accessor returns zero values, so decode
// code can read a whole field sequence and check failed() once.
type reader struct {
	buf  []byte
	off  int
	fail bool
}

func (r *reader) failed() bool {
	return r.fail
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) byte() byte {
	if r.fail || r.remaining() < 1 {
		r.fail = true
		return 0
	}

	v := r.buf[r.off]
	r.off++

	return v
}

func (r *reader) uint16() uint16 {
	if r.fail || r.remaining() < 2 {
		r.fail = true
		return 0
	}

	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2

	return v
}

func (r *reader) int16() int16 {
	return int16(r.uint16())
}

func (r *reader) uint32() uint32 {
	if r.fail || r.remaining() < 4 {
		r.fail = true
		return 0
	}

	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4

	return v
}

func (r *reader) int32() int32 {
	return int32(r.uint32())
}

func (r *reader) float32() float32 {
	return math.Float32frombits(r.uint32())
}

// str reads a 1 byte length prefixed string.
func (r *reader) str() string {
	n := int(r.byte())
	if r.fail || r.remaining() < n {
		r.fail = true
		return ""
	}

	v := string(r.buf[r.off : r.off+n])
	r.off += n

	return v
}
