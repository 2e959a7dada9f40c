package storage

import (
	"errors"
	"io"
)

// ErrVarintOverflow is returned when a value does not fit the 28 bits a
// varint32 can carry.
var ErrVarintOverflow = errors.New("storage: value exceeds varint32 range")

// Varint32Size is the on-disk width of every varint32, regardless of value.
const Varint32Size = 4

// PutVarint32 encodes v into exactly 4 big-endian bytes. The continuation
// bit (0x80) is set on the first three bytes and clear on the last, per
// the fixed-width 28-bit layout this format uses for cell keys and sizes.
func PutVarint32(buf []byte, v uint32) error {
	if v > 0x0FFFFFFF {
		return ErrVarintOverflow
	}
	buf[0] = byte(v>>21) | 0x80
	buf[1] = byte(v>>14) | 0x80
	buf[2] = byte(v>>7) | 0x80
	buf[3] = byte(v & 0x7f)
	return nil
}

// AppendVarint32 encodes v and appends the 4 bytes to buf.
func AppendVarint32(buf []byte, v uint32) ([]byte, error) {
	var b [Varint32Size]byte
	if err := PutVarint32(b[:], v); err != nil {
		return nil, err
	}
	return append(buf, b[:]...), nil
}

// Varint32 decodes a 4-byte varint32 from the front of buf.
func Varint32(buf []byte) (uint32, error) {
	if len(buf) < Varint32Size {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint32(buf[0]&0x7f) << 21
	v |= uint32(buf[1]&0x7f) << 14
	v |= uint32(buf[2]&0x7f) << 7
	v |= uint32(buf[3] & 0x7f)
	return v, nil
}

// ReadVarint32 reads a varint32 from r.
func ReadVarint32(r io.Reader) (uint32, error) {
	var buf [Varint32Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Varint32(buf[:])
}

// WriteVarint32 writes v to w as a varint32.
func WriteVarint32(w io.Writer, v uint32) error {
	var buf [Varint32Size]byte
	if err := PutVarint32(buf[:], v); err != nil {
		return err
	}
	_, err := w.Write(buf[:])
	return err
}
