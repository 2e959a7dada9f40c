package pager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/ridgedb/internal/storage"
)

func newTestPage(t *testing.T, pageType PageType) *MemPage {
	t.Helper()
	pageSize := 4096
	data := make([]byte, pageSize)
	page := &MemPage{
		header:     NewPageHeader(pageType, pageSize),
		pageNumber: 2,
		data:       data,
	}
	page.updateHeaderData()
	return page
}

func TestMemPage_AddCell_InteriorNode(t *testing.T) {
	assert := require.New(t)
	page := newTestPage(t, PageTypeInternal)

	cell := storage.InteriorNode{LeftChild: 2, Key: 999}
	cellBytes, err := cell.ToBytes()
	assert.NoError(err)

	for i := 0; i < 10; i++ {
		page.AddCell(cellBytes)
		assert.Equal(i+1, page.CellCount())
		assert.Equal(cellBytes, page.CellBytes(i)[:len(cellBytes)])
	}
}

func TestMemPage_InsertCell_MidArray(t *testing.T) {
	assert := require.New(t)
	page := newTestPage(t, PageTypeLeafIndex)

	first := storage.IndexLeafCell{Key: 10, PrimaryKey: 1}
	second := storage.IndexLeafCell{Key: 30, PrimaryKey: 3}
	middle := storage.IndexLeafCell{Key: 20, PrimaryKey: 2}

	page.AddCell(first.ToBytes())
	page.AddCell(second.ToBytes())
	page.InsertCell(1, middle.ToBytes())

	assert.Equal(3, page.CellCount())

	c0, err := page.ReadIndexLeafCell(0)
	assert.NoError(err)
	assert.Equal(uint32(10), c0.Key)

	c1, err := page.ReadIndexLeafCell(1)
	assert.NoError(err)
	assert.Equal(uint32(20), c1.Key)

	c2, err := page.ReadIndexLeafCell(2)
	assert.NoError(err)
	assert.Equal(uint32(30), c2.Key)
}

func TestMemPage_Fits(t *testing.T) {
	assert := require.New(t)
	page := newTestPage(t, PageTypeLeaf)

	assert.True(page.Fits(100))
	assert.False(page.Fits(4096))
}

func TestMemPage_FromBytes_RoundTrip(t *testing.T) {
	assert := require.New(t)
	page := newTestPage(t, PageTypeLeaf)

	record, err := storage.NewRecord(7, []*storage.Field{{Type: storage.Integer, Data: 42}}).ToBytes()
	assert.NoError(err)
	page.AddCell(record)

	reloaded, err := FromBytes(page.Number(), page.data)
	assert.NoError(err)
	assert.Equal(1, reloaded.CellCount())
	assert.Equal(PageTypeLeaf, reloaded.Type())

	rec, err := reloaded.ReadRecord(0)
	assert.NoError(err)
	assert.Equal(uint32(7), rec.Key)
}
