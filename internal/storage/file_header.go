package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed width of the file header occupying the front of
// page 1.
const HeaderSize = 100

// DefaultPageSize is installed for newly created database files. Page size
// is a recognized configuration option but is fixed for the lifetime of a
// file once created.
const DefaultPageSize = 1024

var magic = []byte("SQLite format 3\x00")

// ErrCorruptHeader is returned when an opened file's header violates any of
// the fixed invariants this format requires.
var ErrCorruptHeader = errors.New("storage: corrupt file header")

// FileHeader is the 100-byte structure at the front of page 1.
type FileHeader struct {
	PageSize          uint16
	FileChangeCounter uint32
	SchemaVersion     uint32
	SizeInPages       uint32
	UserCookie        uint32
}

// NewFileHeader builds the header written into a freshly created database
// file.
func NewFileHeader(pageSize uint16) FileHeader {
	return FileHeader{
		PageSize:    pageSize,
		SizeInPages: 1,
	}
}

// WriteTo serializes the header into the first HeaderSize bytes of buf.
// buf must be at least HeaderSize bytes.
func (h FileHeader) WriteTo(buf []byte) {
	data := buf[:HeaderSize]
	for i := range data {
		data[i] = 0
	}
	copy(data, magic)

	binary.BigEndian.PutUint16(data[16:18], h.PageSize)

	// Bytes 18-23: fixed constant block (write/read format version,
	// reserved space, embedded payload fractions).
	data[18] = 1
	data[19] = 1
	data[20] = 0
	data[21] = 64
	data[22] = 32
	data[23] = 32

	binary.BigEndian.PutUint32(data[24:28], h.FileChangeCounter)
	binary.BigEndian.PutUint32(data[28:32], h.SizeInPages)
	// 32-39 zero
	// 40-43 schema version
	binary.BigEndian.PutUint32(data[40:44], h.SchemaVersion)
	binary.BigEndian.PutUint32(data[44:48], 0x00000001)
	binary.BigEndian.PutUint32(data[48:52], 20000)
	// 52-55 zero
	binary.BigEndian.PutUint32(data[56:60], 0x00000001)
	binary.BigEndian.PutUint32(data[60:64], h.UserCookie)
	// 64-67 zero
}

// ParseFileHeader validates and decodes a 100-byte header. Every invariant
// in the fixed constant block must hold or the read fails as corrupt.
func ParseFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < HeaderSize {
		return FileHeader{}, ErrCorruptHeader
	}
	data := buf[:HeaderSize]

	if !bytes.Equal(data[0:16], magic) {
		return FileHeader{}, ErrCorruptHeader
	}
	if data[18] != 1 || data[19] != 1 || data[20] != 0 || data[21] != 64 || data[22] != 32 || data[23] != 32 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[24:28]) != 0 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[32:36]) != 0 || binary.BigEndian.Uint32(data[36:40]) != 0 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[44:48]) != 0x00000001 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[48:52]) != 20000 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[52:56]) != 0 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[56:60]) != 0x00000001 {
		return FileHeader{}, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(data[64:68]) != 0 {
		return FileHeader{}, ErrCorruptHeader
	}

	return FileHeader{
		PageSize:          binary.BigEndian.Uint16(data[16:18]),
		FileChangeCounter: binary.BigEndian.Uint32(data[24:28]),
		SizeInPages:       binary.BigEndian.Uint32(data[28:32]),
		SchemaVersion:     binary.BigEndian.Uint32(data[40:44]),
		UserCookie:        binary.BigEndian.Uint32(data[60:64]),
	}, nil
}
