package pager

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/ridgedb/internal/storage"
)

// newIndexTree allocates a fresh, empty index b-tree and returns its root
// page number alongside the BTree handle open over it.
func newIndexTree(t *testing.T, p Pager) (int, *BTree) {
	t.Helper()
	root, err := p.Allocate(PageTypeLeafIndex)
	require.NoError(t, err)
	require.NoError(t, p.Write(root))
	return root.Number(), NewBTree(root.Number(), p)
}

// TestBTree_IndexSplit_PreservesPrimaryKeyAndOrder inserts enough entries
// to force an index b-tree through several splits, then walks the full
// tree forward with a cursor and checks that every entry - including
// every promoted separator sitting in an internal node - is visited
// exactly once, in order, with its primary key intact.
func TestBTree_IndexSplit_PreservesPrimaryKeyAndOrder(t *testing.T) {
	r := require.New(t)
	p := NewPager(storage.NewMemoryFile(4096))
	_, tree := newIndexTree(t, p)

	const n = 600
	for i := 0; i < n; i++ {
		key := uint32(i * 2)
		pkey := uint32(i + 1000)
		r.NoError(tree.InsertIndexCell(&storage.IndexLeafCell{Key: key, PrimaryKey: pkey}))
	}
	r.NoError(p.Flush())

	cursor, err := NewCursor(p, CursorRead, tree.rootPage, "idx")
	r.NoError(err)

	hasRow, err := cursor.Rewind()
	r.NoError(err)

	var seen []storage.IndexLeafCell
	for hasRow {
		cell, err := cursor.CurrentIndexCell()
		r.NoError(err)
		seen = append(seen, *cell)
		hasRow, err = cursor.Next()
		r.NoError(err)
	}

	r.Len(seen, n, "every inserted entry must be visited exactly once")
	r.True(sort.SliceIsSorted(seen, func(i, j int) bool { return seen[i].Key < seen[j].Key }))

	for _, cell := range seen {
		expectedPKey := cell.Key/2 + 1000
		r.Equal(expectedPKey, cell.PrimaryKey, "promoted separator must not lose its primary key")
	}
}

// TestBTree_IndexSplit_ReverseTraversalMatchesForward confirms Prev walks
// the same split tree in exactly the reverse order of Next, including
// stopping on index-internal separators during the climb back up.
func TestBTree_IndexSplit_ReverseTraversalMatchesForward(t *testing.T) {
	r := require.New(t)
	p := NewPager(storage.NewMemoryFile(4096))
	_, tree := newIndexTree(t, p)

	const n = 400
	for i := 0; i < n; i++ {
		r.NoError(tree.InsertIndexCell(&storage.IndexLeafCell{Key: uint32(i), PrimaryKey: uint32(i)}))
	}
	r.NoError(p.Flush())

	forward, err := NewCursor(p, CursorRead, tree.rootPage, "idx")
	r.NoError(err)
	hasRow, err := forward.Rewind()
	r.NoError(err)
	var keysForward []uint32
	for hasRow {
		cell, err := forward.CurrentIndexCell()
		r.NoError(err)
		keysForward = append(keysForward, cell.Key)
		hasRow, err = forward.Next()
		r.NoError(err)
	}

	backward, err := NewCursor(p, CursorRead, tree.rootPage, "idx")
	r.NoError(err)
	hasRow, err = backward.RewindToEnd()
	r.NoError(err)
	var keysBackward []uint32
	for hasRow {
		cell, err := backward.CurrentIndexCell()
		r.NoError(err)
		keysBackward = append(keysBackward, cell.Key)
		hasRow, err = backward.Prev()
		r.NoError(err)
	}

	r.Len(keysForward, n)
	r.Len(keysBackward, n)
	for i := range keysForward {
		r.Equal(keysForward[i], keysBackward[n-1-i])
	}
}

// TestBTree_IndexSplit_SeekGeNonExactMatch confirms a SeekGe for a value
// that doesn't exist still finds the next greater entry, even when that
// entry turns out to be a separator promoted into an internal node
// rather than anything sitting in the leaf the descent lands on.
func TestBTree_IndexSplit_SeekGeNonExactMatch(t *testing.T) {
	r := require.New(t)
	p := NewPager(storage.NewMemoryFile(4096))
	_, tree := newIndexTree(t, p)

	const n = 600
	for i := 0; i < n; i++ {
		r.NoError(tree.InsertIndexCell(&storage.IndexLeafCell{Key: uint32(i * 2), PrimaryKey: uint32(i)}))
	}
	r.NoError(p.Flush())

	for i := 0; i < n; i++ {
		target := uint32(i*2) + 1 // odd values never inserted; next key is i*2+2
		cursor, err := NewCursor(p, CursorRead, tree.rootPage, "idx")
		r.NoError(err)

		found, err := cursor.SeekGe(target)
		r.NoError(err)

		if i == n-1 {
			r.False(found, "seeking past the greatest key must report not found")
			continue
		}

		r.True(found)
		cell, err := cursor.CurrentIndexCell()
		r.NoError(err)
		r.Equal(uint32(i*2+2), cell.Key)
		r.Equal(uint32(i+1), cell.PrimaryKey)
	}
}

// TestBTree_IndexSplit_SeekGeFindsExactSeparator confirms SeekGe can land
// exactly on a promoted separator cell sitting in an internal node, not
// just on leaf entries.
func TestBTree_IndexSplit_SeekGeFindsExactSeparator(t *testing.T) {
	r := require.New(t)
	p := NewPager(storage.NewMemoryFile(4096))
	_, tree := newIndexTree(t, p)

	const n = 600
	for i := 0; i < n; i++ {
		r.NoError(tree.InsertIndexCell(&storage.IndexLeafCell{Key: uint32(i * 2), PrimaryKey: uint32(i)}))
	}
	r.NoError(p.Flush())

	root, err := p.Read(tree.rootPage)
	r.NoError(err)
	r.Equal(PageTypeInternalIndex, root.Type(), "this many inserts must have split the root at least once")

	cursor, err := NewCursor(p, CursorRead, tree.rootPage, "idx")
	r.NoError(err)
	for i := 0; i < n; i++ {
		found, err := cursor.SeekGe(uint32(i * 2))
		r.NoError(err)
		r.True(found)
		cell, err := cursor.CurrentIndexCell()
		r.NoError(err)
		r.Equal(uint32(i*2), cell.Key)
		r.Equal(uint32(i), cell.PrimaryKey)
	}
}
