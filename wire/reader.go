package wire

import "encoding/binary"

// Reader decodes replication message fields from a received payload.
// All multi-byte reads are little-endian. Reads past the end set the
// truncated flag instead of panicking; callers check Truncated once after
// a record rather than after every field.
type Reader struct {
	data      []byte
	off       int
	truncated bool
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadU8 reads 1 byte.
func (r *Reader) ReadU8() byte {
	if r.off+1 > len(r.data) {
		r.truncated = true
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadU16 reads 2 bytes little-endian.
func (r *Reader) ReadU16() uint16 {
	if r.off+2 > len(r.data) {
		r.truncated = true
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadU32 reads 4 bytes little-endian.
func (r *Reader) ReadU32() uint32 {
	if r.off+4 > len(r.data) {
		r.truncated = true
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadU64 reads 8 bytes little-endian.
func (r *Reader) ReadU64() uint64 {
	if r.off+8 > len(r.data) {
		r.truncated = true
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadBytes reads n raw bytes as a copy.
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 || r.off+n > len(r.data) {
		r.truncated = true
		r.off = len(r.data)
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Truncated reports whether any read ran past the end of the payload.
func (r *Reader) Truncated() bool { return r.truncated }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }
