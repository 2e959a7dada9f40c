package storage

import (
	"encoding/binary"
	"io"
)

// InteriorNodeSize is the fixed encoded size of a table-internal cell:
// a 4-byte child page number followed by a 4-byte varint32 key.
const InteriorNodeSize = 4 + Varint32Size

// InteriorNode is a table-internal cell: it routes to the child subtree
// containing keys up to and including Key.
type InteriorNode struct {
	LeftChild uint32
	Key       uint32
}

// ToBytes serializes an interior node to its fixed 8-byte encoding.
func (r InteriorNode) ToBytes() ([]byte, error) {
	buf := make([]byte, InteriorNodeSize)
	binary.BigEndian.PutUint32(buf[0:4], r.LeftChild)
	if err := PutVarint32(buf[4:8], r.Key); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInteriorNode parses an interior node from the front of data.
func ReadInteriorNode(data []byte) (*InteriorNode, error) {
	if len(data) < InteriorNodeSize {
		return nil, io.ErrUnexpectedEOF
	}

	leftChild := binary.BigEndian.Uint32(data[0:4])
	key, err := Varint32(data[4:8])
	if err != nil {
		return nil, err
	}

	return &InteriorNode{LeftChild: leftChild, Key: key}, nil
}
