package pager

import "github.com/joeandaverde/ridgedb/internal/storage"

// Initialize formats a brand new database file: the 100-byte file header
// followed by an empty table-leaf node occupying the rest of page 1. Page 1
// is the root of the schema table.
func Initialize(src storage.PageSource) error {
	pageSize := src.PageSize()
	buf := make([]byte, pageSize)

	header := storage.NewFileHeader(uint16(pageSize))
	header.WriteTo(buf[:storage.HeaderSize])

	page := &MemPage{
		header:     NewPageHeader(PageTypeLeaf, pageSize),
		pageNumber: 1,
		data:       buf,
	}
	// The free offset is page-relative, so on page 1 it starts past the
	// file header.
	page.header.FreeOffset += uint16(storage.HeaderSize)
	page.updateHeaderData()

	return src.Write(1, buf)
}
