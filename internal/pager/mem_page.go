package pager

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/joeandaverde/ridgedb/internal/storage"
)

// PageType identifies the variant of a B-tree node (1 byte on disk).
type PageType byte

const (
	// PageTypeInternal is a table-internal node.
	PageTypeInternal PageType = 0x05

	// PageTypeLeaf is a table-leaf node.
	PageTypeLeaf PageType = 0x0D

	// PageTypeInternalIndex is an index-internal node.
	PageTypeInternalIndex PageType = 0x02

	// PageTypeLeafIndex is an index-leaf node.
	PageTypeLeafIndex PageType = 0x0A
)

// IsInternal reports whether t is one of the two internal node variants.
func (t PageType) IsInternal() bool {
	return t == PageTypeInternal || t == PageTypeInternalIndex
}

// IsIndex reports whether t belongs to an index tree rather than a table tree.
func (t PageType) IsIndex() bool {
	return t == PageTypeInternalIndex || t == PageTypeLeafIndex
}

// InteriorHeaderLen is the header length of an internal btree node.
const InteriorHeaderLen = 12

// LeafHeaderLen is the header length of a btree leaf node.
const LeafHeaderLen = 8

// HeaderSize returns the on-page header width for this node type.
func (t PageType) HeaderSize() int {
	if t.IsInternal() {
		return InteriorHeaderLen
	}
	return LeafHeaderLen
}

// PageHeader is the per-node header living at the front of a page (or at
// offset 100 on page 1).
type PageHeader struct {
	Type PageType

	// FreeOffset is the page-relative offset where the cell-offset array
	// ends and free space begins. A cell of size S fits only if
	// cells_offset - free_offset - 2 >= S.
	FreeOffset uint16

	// NumCells is the number of cells stored in this node.
	NumCells uint16

	// CellsOffset is the start of the cell content area. An empty node
	// has CellsOffset equal to the page size.
	CellsOffset uint16

	// RightPage is the rightmost child page number. Internal nodes only.
	RightPage int
}

// NewPageHeader builds the header for a freshly allocated, empty node.
func NewPageHeader(pageType PageType, pageSize int) PageHeader {
	return PageHeader{
		Type:        pageType,
		FreeOffset:  uint16(pageType.HeaderSize()),
		NumCells:    0,
		CellsOffset: uint16(pageSize),
		RightPage:   0,
	}
}

// MemPage represents a page of the database file held in memory.
type MemPage struct {
	header     PageHeader
	pageNumber int
	data       []byte
	dirty      bool
}

// Number is the page number.
func (p *MemPage) Number() int {
	return p.pageNumber
}

// Type is the node variant stored on this page.
func (p *MemPage) Type() PageType {
	return p.header.Type
}

// NumCells is the number of cells stored in this node.
func (p *MemPage) NumCells() int {
	return int(p.header.NumCells)
}

// RightPage is the rightmost child page number for internal nodes.
func (p *MemPage) RightPage() int {
	return p.header.RightPage
}

// SetRightPage updates the rightmost child page number and marks the page
// dirty.
func (p *MemPage) SetRightPage(pageNumber int) {
	p.header.RightPage = pageNumber
	p.dirty = true
	p.updateHeaderData()
}

// WriteTo writes the page to the specified writer.
func (p *MemPage) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.data)
	return int64(n), err
}

// SetHeader sets the page header and marks the page as dirty. On page 1
// the free offset is moved past the 100-byte file header so that it stays
// page-relative.
func (p *MemPage) SetHeader(h PageHeader) {
	p.dirty = true
	h.FreeOffset += uint16(headerOffset(p.pageNumber))
	p.header = h
	p.updateHeaderData()
}

// CopyTo copies the page data to dst and marks dst as dirty.
func (p *MemPage) CopyTo(dst *MemPage) {
	dst.dirty = true
	dst.header = p.header
	copy(dst.data, p.data)
}

// Fits determines if there's room in the node for a new cell of the given
// encoded size.
func (p *MemPage) Fits(cellLen int) bool {
	return int(p.header.CellsOffset)-int(p.header.FreeOffset)-2 >= cellLen
}

// CellCount the total number of cells in this page.
func (p *MemPage) CellCount() int {
	return int(p.header.NumCells)
}

// CellBytes returns the raw encoded bytes of the cell at cellIndex.
func (p *MemPage) CellBytes(cellIndex int) []byte {
	return p.data[p.cellDataOffset(cellIndex):]
}

// ReadRecord decodes the table-leaf record at cellIndex.
func (p *MemPage) ReadRecord(cellIndex int) (*storage.Record, error) {
	return storage.ReadRecord(p.CellBytes(cellIndex))
}

// ReadInteriorNode decodes the table-internal cell at cellIndex.
func (p *MemPage) ReadInteriorNode(cellIndex int) (*storage.InteriorNode, error) {
	return storage.ReadInteriorNode(p.CellBytes(cellIndex))
}

// ReadIndexLeafCell decodes the index-leaf cell at cellIndex.
func (p *MemPage) ReadIndexLeafCell(cellIndex int) (*storage.IndexLeafCell, error) {
	return storage.ReadIndexLeafCell(p.CellBytes(cellIndex))
}

// ReadIndexInternalCell decodes the index-internal cell at cellIndex.
func (p *MemPage) ReadIndexInternalCell(cellIndex int) (*storage.IndexInternalCell, error) {
	return storage.ReadIndexInternalCell(p.CellBytes(cellIndex))
}

// AddCell appends a cell to the end of the cell array. Assumes the caller
// has already verified Fits.
func (p *MemPage) AddCell(data []byte) {
	p.InsertCell(int(p.header.NumCells), data)
}

// InsertCell inserts a cell's encoded bytes at the given cell-array
// position, shifting subsequent cell pointers right. Assumes the caller has
// already verified Fits.
func (p *MemPage) InsertCell(pos int, data []byte) {
	cellLength := uint16(len(data))
	cellOffset := p.header.CellsOffset - cellLength

	pointersStart := headerOffset(p.pageNumber) + p.header.Type.HeaderSize()

	for i := int(p.header.NumCells); i > pos; i-- {
		src := pointersStart + (i-1)*2
		dst := pointersStart + i*2
		copy(p.data[dst:dst+2], p.data[src:src+2])
	}

	ptrOffset := pointersStart + pos*2
	binary.BigEndian.PutUint16(p.data[ptrOffset:], cellOffset)

	copy(p.data[cellOffset:], data)

	p.header.CellsOffset = cellOffset
	p.header.FreeOffset += 2
	p.header.NumCells++
	p.dirty = true

	p.updateHeaderData()
}

func (p *MemPage) updateHeaderData() {
	header := p.data[headerOffset(p.pageNumber):]
	header[0] = byte(p.header.Type)
	binary.BigEndian.PutUint16(header[1:3], p.header.FreeOffset)
	binary.BigEndian.PutUint16(header[3:5], p.header.NumCells)
	binary.BigEndian.PutUint16(header[5:7], p.header.CellsOffset)
	header[7] = 0

	if p.header.Type.IsInternal() {
		binary.BigEndian.PutUint32(header[8:12], uint32(p.header.RightPage))
	}
}

func (p *MemPage) cellDataOffset(cellIndex int) int {
	pointersStart := headerOffset(p.pageNumber) + p.header.Type.HeaderSize()
	ptrOffset := pointersStart + 2*cellIndex
	return int(binary.BigEndian.Uint16(p.data[ptrOffset : ptrOffset+2]))
}

func headerOffset(pageNumber int) int {
	if pageNumber == 1 {
		return storage.HeaderSize
	}
	return 0
}

// FromBytes parses a byte slice to a MemPage and takes ownership of the
// slice.
func FromBytes(pageNumber int, data []byte) (*MemPage, error) {
	view := data[headerOffset(pageNumber):]
	if len(view) < LeafHeaderLen {
		return nil, fmt.Errorf("pager: page %d too small", pageNumber)
	}

	header := PageHeader{
		Type:        PageType(view[0]),
		FreeOffset:  binary.BigEndian.Uint16(view[1:3]),
		NumCells:    binary.BigEndian.Uint16(view[3:5]),
		CellsOffset: binary.BigEndian.Uint16(view[5:7]),
	}
	if header.Type.IsInternal() {
		header.RightPage = int(binary.BigEndian.Uint32(view[8:12]))
	}

	return &MemPage{
		header:     header,
		pageNumber: pageNumber,
		data:       data,
		dirty:      false,
	}, nil
}
