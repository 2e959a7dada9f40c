package storage

import "fmt"

// MemoryFile is an in-memory PageSource, used by tests that don't need a
// file on disk.
type MemoryFile struct {
	pageSize int
	data     []byte
}

// NewMemoryFile creates an empty in-memory page source.
func NewMemoryFile(pageSize int) *MemoryFile {
	return &MemoryFile{pageSize: pageSize}
}

func (m *MemoryFile) PageSize() int {
	return m.pageSize
}

func (m *MemoryFile) TotalPages() int {
	return len(m.data) / m.pageSize
}

func (m *MemoryFile) Read(page int) ([]byte, error) {
	offset := (page - 1) * m.pageSize
	if offset < 0 || offset+m.pageSize > len(m.data) {
		return nil, fmt.Errorf("storage: page does not exist: %d", page)
	}
	out := make([]byte, m.pageSize)
	copy(out, m.data[offset:offset+m.pageSize])
	return out, nil
}

func (m *MemoryFile) Write(page int, data []byte) error {
	offset := (page - 1) * m.pageSize
	for offset+m.pageSize > len(m.data) {
		m.data = append(m.data, make([]byte, m.pageSize)...)
	}
	copy(m.data[offset:offset+m.pageSize], data[:m.pageSize])
	return nil
}

var _ PageReader = (*MemoryFile)(nil)
var _ PageWriter = (*MemoryFile)(nil)
