package storage

import (
	"encoding/binary"
	"io"
)

// indexCellMarker is a fixed 4-byte tag present in every index cell,
// distinguishing index cells from the varint32-framed table cells.
const indexCellMarker = 0x0B030404

// IndexInternalCellSize is the fixed encoded size of an index-internal
// cell: child-page, marker, key, primary-key, all 4-byte big-endian words.
const IndexInternalCellSize = 16

// IndexLeafCellSize is the fixed encoded size of an index-leaf cell:
// marker, key, primary-key.
const IndexLeafCellSize = 12

// IndexInternalCell routes to the child subtree for index keys up to and
// including Key, the indexed column's value, paired with the primary key
// of the row it identifies.
type IndexInternalCell struct {
	LeftChild  uint32
	Key        uint32
	PrimaryKey uint32
}

// ToBytes serializes an index-internal cell to its fixed 16-byte encoding.
func (c IndexInternalCell) ToBytes() []byte {
	buf := make([]byte, IndexInternalCellSize)
	binary.BigEndian.PutUint32(buf[0:4], c.LeftChild)
	binary.BigEndian.PutUint32(buf[4:8], indexCellMarker)
	binary.BigEndian.PutUint32(buf[8:12], c.Key)
	binary.BigEndian.PutUint32(buf[12:16], c.PrimaryKey)
	return buf
}

// ReadIndexInternalCell parses an index-internal cell from the front of
// data.
func ReadIndexInternalCell(data []byte) (*IndexInternalCell, error) {
	if len(data) < IndexInternalCellSize {
		return nil, io.ErrUnexpectedEOF
	}
	return &IndexInternalCell{
		LeftChild:  binary.BigEndian.Uint32(data[0:4]),
		Key:        binary.BigEndian.Uint32(data[8:12]),
		PrimaryKey: binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// IndexLeafCell associates an indexed column's value with the primary key
// of the row holding it.
type IndexLeafCell struct {
	Key        uint32
	PrimaryKey uint32
}

// ToBytes serializes an index-leaf cell to its fixed 12-byte encoding.
func (c IndexLeafCell) ToBytes() []byte {
	buf := make([]byte, IndexLeafCellSize)
	binary.BigEndian.PutUint32(buf[0:4], indexCellMarker)
	binary.BigEndian.PutUint32(buf[4:8], c.Key)
	binary.BigEndian.PutUint32(buf[8:12], c.PrimaryKey)
	return buf
}

// ReadIndexLeafCell parses an index-leaf cell from the front of data.
func ReadIndexLeafCell(data []byte) (*IndexLeafCell, error) {
	if len(data) < IndexLeafCellSize {
		return nil, io.ErrUnexpectedEOF
	}
	return &IndexLeafCell{
		Key:        binary.BigEndian.Uint32(data[4:8]),
		PrimaryKey: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}
