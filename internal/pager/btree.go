package pager

import (
	"errors"

	"github.com/joeandaverde/ridgedb/internal/storage"
)

// ErrDuplicateKey is returned by Insert when a table b-tree already
// contains a row with the given key.
var ErrDuplicateKey = errors.New("pager: duplicate key")

// BTree is a single b-tree rooted at a page, operating on either table
// cells (InteriorNode/Record) or index cells (IndexInternalCell/
// IndexLeafCell) depending on the node types found at rootPage.
type BTree struct {
	rootPage int
	pager    Pager
}

// NewBTree opens the b-tree rooted at rootPage.
func NewBTree(rootPage int, p Pager) *BTree {
	return &BTree{rootPage: rootPage, pager: p}
}

// cellKey extracts the comparison key of a cell: the row id for table
// cells, the indexed column's value for index cells.
func cellKey(nodeType PageType, page *MemPage, cellIndex int) (uint32, error) {
	switch nodeType {
	case PageTypeLeaf:
		r, err := page.ReadRecord(cellIndex)
		if err != nil {
			return 0, err
		}
		return r.Key, nil
	case PageTypeInternal:
		n, err := page.ReadInteriorNode(cellIndex)
		if err != nil {
			return 0, err
		}
		return n.Key, nil
	case PageTypeLeafIndex:
		c, err := page.ReadIndexLeafCell(cellIndex)
		if err != nil {
			return 0, err
		}
		return c.Key, nil
	case PageTypeInternalIndex:
		c, err := page.ReadIndexInternalCell(cellIndex)
		if err != nil {
			return 0, err
		}
		return c.Key, nil
	}
	return 0, errors.New("pager: unknown node type")
}

func childPage(page *MemPage, cellIndex int) (int, error) {
	switch page.Type() {
	case PageTypeInternal:
		n, err := page.ReadInteriorNode(cellIndex)
		if err != nil {
			return 0, err
		}
		return int(n.LeftChild), nil
	case PageTypeInternalIndex:
		c, err := page.ReadIndexInternalCell(cellIndex)
		if err != nil {
			return 0, err
		}
		return int(c.LeftChild), nil
	}
	return 0, errors.New("pager: not an internal node")
}

func internalEntry(nodeType PageType, leftChild int, key uint32, primaryKey uint32) ([]byte, error) {
	if nodeType.IsIndex() {
		return storage.IndexInternalCell{LeftChild: uint32(leftChild), Key: key, PrimaryKey: primaryKey}.ToBytes(), nil
	}
	return storage.InteriorNode{LeftChild: uint32(leftChild), Key: key}.ToBytes()
}

// cellPrimaryKey extracts the primary-key field carried by an index cell.
// Table cells have no such field, so it's always 0 for them.
func cellPrimaryKey(nodeType PageType, page *MemPage, cellIndex int) (uint32, error) {
	switch nodeType {
	case PageTypeLeafIndex:
		c, err := page.ReadIndexLeafCell(cellIndex)
		if err != nil {
			return 0, err
		}
		return c.PrimaryKey, nil
	case PageTypeInternalIndex:
		c, err := page.ReadIndexInternalCell(cellIndex)
		if err != nil {
			return 0, err
		}
		return c.PrimaryKey, nil
	}
	return 0, nil
}

// Find locates the leaf cell matching key. ok is false if no cell with
// that exact key exists; leaf and cellIndex still identify where it would
// be inserted.
func (b *BTree) Find(key uint32) (leaf *MemPage, cellIndex int, ok bool, err error) {
	page, err := b.pager.Read(b.rootPage)
	if err != nil {
		return nil, 0, false, err
	}
	return b.find(page, key)
}

func (b *BTree) find(page *MemPage, key uint32) (*MemPage, int, bool, error) {
	if page.Type().IsInternal() {
		i, childNum, err := b.locateChild(page, key)
		if err != nil {
			return nil, 0, false, err
		}
		child, err := b.pager.Read(childNum)
		if err != nil {
			return nil, 0, false, err
		}
		_ = i
		return b.find(child, key)
	}

	n := page.CellCount()
	for i := 0; i < n; i++ {
		k, err := cellKey(page.Type(), page, i)
		if err != nil {
			return nil, 0, false, err
		}
		if k == key {
			return page, i, true, nil
		}
		if k > key {
			return page, i, false, nil
		}
	}
	return page, n, false, nil
}

// locateChild returns the index of the first cell whose key is >= key,
// and the page number of the child subtree to descend into for key
// (cells[i].child if i < n, else the right page).
func (b *BTree) locateChild(page *MemPage, key uint32) (int, int, error) {
	n := page.CellCount()
	i := 0
	for ; i < n; i++ {
		k, err := cellKey(page.Type(), page, i)
		if err != nil {
			return 0, 0, err
		}
		if key <= k {
			break
		}
	}

	if i < n {
		c, err := childPage(page, i)
		return i, c, err
	}
	return i, page.RightPage(), nil
}

func (b *BTree) leafInsertPos(page *MemPage, key uint32) int {
	n := page.CellCount()
	pos := 0
	for ; pos < n; pos++ {
		k, err := cellKey(page.Type(), page, pos)
		if err != nil {
			break
		}
		if k > key {
			break
		}
	}
	return pos
}

// Insert adds a new table record to the tree, rejecting duplicate keys.
func (b *BTree) Insert(r *storage.Record) error {
	cellBytes, err := r.ToBytes()
	if err != nil {
		return err
	}
	return b.insertTop(r.Key, cellBytes, false)
}

// InsertIndexCell adds a new index-leaf cell to the tree. Index trees
// permit duplicate indexed values; only the (key, primary-key) pair is
// unique by construction.
func (b *BTree) InsertIndexCell(c *storage.IndexLeafCell) error {
	return b.insertTop(c.Key, c.ToBytes(), true)
}

func (b *BTree) insertTop(key uint32, cellBytes []byte, allowDuplicates bool) error {
	root, err := b.pager.Read(b.rootPage)
	if err != nil {
		return err
	}

	if !allowDuplicates {
		_, _, found, err := b.find(root, key)
		if err != nil {
			return err
		}
		if found {
			return ErrDuplicateKey
		}
	}

	return b.insertNode(root, key, cellBytes)
}

// insertNode recursively descends to the leaf that should hold the new
// cell, proactively splitting any full child encountered on the way down
// so the parent always has room to receive the resulting separator.
func (b *BTree) insertNode(page *MemPage, key uint32, cellBytes []byte) error {
	if page.Type().IsInternal() {
		i, childNum, err := b.locateChild(page, key)
		if err != nil {
			return err
		}
		child, err := b.pager.Read(childNum)
		if err != nil {
			return err
		}

		// An internal child must also have room for the separator that a
		// split of one of its own children would add to it.
		need := len(cellBytes)
		if child.Type().IsInternal() {
			probe, err := internalEntry(child.Type(), 0, 0, 0)
			if err != nil {
				return err
			}
			if len(probe) > need {
				need = len(probe)
			}
		}

		if !child.Fits(need) {
			if err := b.splitChild(page, child, i); err != nil {
				return err
			}
			// The separator just inserted into page may change which
			// child key now routes to; re-resolve from page.
			return b.insertNode(page, key, cellBytes)
		}

		return b.insertNode(child, key, cellBytes)
	}

	if !page.Fits(len(cellBytes)) {
		if page.Number() != b.rootPage {
			return errors.New("pager: leaf should have been split by its parent before descent")
		}
		return b.splitRootLeaf(page, key, cellBytes)
	}

	pos := b.leafInsertPos(page, key)
	page.InsertCell(pos, cellBytes)
	return b.pager.Write(page)
}

// splitRootLeaf handles the case where the tree's root is itself a leaf
// that has run out of room. The root page number must keep referring to
// the tree's root (page 1 carries the 100-byte file header for the
// schema tree), so the split allocates two new pages for the former
// leaf's data and rewrites the root page in place as a fresh internal
// node pointing at them.
func (b *BTree) splitRootLeaf(root *MemPage, key uint32, cellBytes []byte) error {
	left, right, sepKey, sepPK, err := b.distribute(root, root.Type())
	if err != nil {
		return err
	}

	if key <= sepKey {
		if !left.Fits(len(cellBytes)) {
			return errors.New("pager: new cell does not fit freshly split leaf")
		}
		left.InsertCell(b.leafInsertPos(left, key), cellBytes)
	} else {
		if !right.Fits(len(cellBytes)) {
			return errors.New("pager: new cell does not fit freshly split leaf")
		}
		right.InsertCell(b.leafInsertPos(right, key), cellBytes)
	}

	internalType := internalTypeFor(root.Type())
	root.SetHeader(NewPageHeader(internalType, len(root.data)))
	entry, err := internalEntry(internalType, left.Number(), sepKey, sepPK)
	if err != nil {
		return err
	}
	root.AddCell(entry)
	root.SetRightPage(right.Number())

	return b.pager.Write(root, left, right)
}

// splitChild splits a full non-root node into two new siblings, inserts
// a separator cell pointing at the new left sibling into parent at
// childIndex, and repoints the entry that used to route to child (the
// cell now at childIndex+1, or parent's right-page pointer if child was
// the rightmost subtree) at the new right sibling. If parent is the root
// and has no room for the separator, only the root is split and the
// caller re-descends from it.
func (b *BTree) splitChild(parent, child *MemPage, childIndex int) error {
	probe, err := internalEntry(parent.Type(), 0, 0, 0)
	if err != nil {
		return err
	}

	if !parent.Fits(len(probe)) {
		if parent.Number() == b.rootPage {
			return b.splitRootInternal(parent)
		}
		return errors.New("pager: internal node full mid-split; cascading non-root split not implemented")
	}

	left, right, sepKey, sepPK, err := b.distribute(child, child.Type())
	if err != nil {
		return err
	}

	entry, err := internalEntry(parent.Type(), left.Number(), sepKey, sepPK)
	if err != nil {
		return err
	}

	wasRightmost := childIndex >= parent.CellCount()
	parent.InsertCell(childIndex, entry)
	if wasRightmost {
		parent.SetRightPage(right.Number())
	} else {
		// The cell that routed to child now sits at childIndex+1; its key
		// still bounds the upper half of child's entries, which moved to
		// right.
		if err := b.rewriteChildPointer(parent, childIndex+1, right.Number()); err != nil {
			return err
		}
	}

	return b.pager.Write(parent, left, right)
}

// insertSeparator inserts a routing entry for (leftChild, rightChild)
// keyed at sepKey into an internal node that was just promoted to root.
func (b *BTree) insertSeparator(root *MemPage, leftChild, rightChild int, sepKey uint32, sepPK uint32) error {
	pos := b.leafInsertPos(root, sepKey)
	entry, err := internalEntry(root.Type(), leftChild, sepKey, sepPK)
	if err != nil {
		return err
	}
	if !root.Fits(len(entry)) {
		return errors.New("pager: root has no room for promoted separator")
	}
	root.InsertCell(pos, entry)
	if pos == root.CellCount()-1 {
		root.SetRightPage(rightChild)
	}
	return b.pager.Write(root)
}

// rewriteChildPointer replaces the child pointer in the cell at
// cellIndex, keeping the cell's key (and, for an index cell, its
// primary key) unchanged.
func (b *BTree) rewriteChildPointer(page *MemPage, cellIndex, newChild int) error {
	key, err := cellKey(page.Type(), page, cellIndex)
	if err != nil {
		return err
	}
	pk, err := cellPrimaryKey(page.Type(), page, cellIndex)
	if err != nil {
		return err
	}
	entry, err := internalEntry(page.Type(), newChild, key, pk)
	if err != nil {
		return err
	}
	copy(page.CellBytes(cellIndex), entry)
	return nil
}

// splitRootInternal promotes a full internal root to a fresh two-child
// root, preserving the root's page number.
func (b *BTree) splitRootInternal(root *MemPage) error {
	left, right, sepKey, sepPK, err := b.distribute(root, root.Type())
	if err != nil {
		return err
	}

	root.SetHeader(NewPageHeader(root.Type(), len(root.data)))
	entry, err := internalEntry(root.Type(), left.Number(), sepKey, sepPK)
	if err != nil {
		return err
	}
	root.AddCell(entry)
	root.SetRightPage(right.Number())

	return b.pager.Write(root, left, right)
}

func internalTypeFor(nodeType PageType) PageType {
	if nodeType.IsIndex() {
		return PageTypeInternalIndex
	}
	return PageTypeInternal
}

// distribute allocates two fresh pages of nodeType and divides node's
// cells between them at the median, returning the left and right
// siblings and the key (and, for an index node, primary key) that
// separates them.
//
// Table nodes are a B+-tree: rows live only in leaves, so a leaf's
// median cell stays in left and its key is simply copied up as a routing
// separator. A table-internal node does not keep its median cell: the
// median's child pointer becomes left's right page and its key is
// promoted. Index nodes are a true in-order b-tree: an internal cell
// is itself a visitable entry, so the median cell is removed from both
// children and promoted whole - it is never duplicated between a leaf
// and its ancestor.
func (b *BTree) distribute(node *MemPage, nodeType PageType) (left, right *MemPage, sepKey uint32, sepPK uint32, err error) {
	left, err = b.pager.Allocate(nodeType)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	right, err = b.pager.Allocate(nodeType)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	n := node.CellCount()
	median := (n - 1) / 2

	if nodeType.IsIndex() {
		for i := 0; i < median; i++ {
			left.AddCell(node.CellBytes(i))
		}
		for i := median + 1; i < n; i++ {
			right.AddCell(node.CellBytes(i))
		}

		sepKey, err = cellKey(nodeType, node, median)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		sepPK, err = cellPrimaryKey(nodeType, node, median)
		if err != nil {
			return nil, nil, 0, 0, err
		}

		if nodeType.IsInternal() {
			medianChild, err := childPage(node, median)
			if err != nil {
				return nil, nil, 0, 0, err
			}
			left.SetRightPage(medianChild)
			right.SetRightPage(node.RightPage())
		}

		return left, right, sepKey, sepPK, nil
	}

	leftEnd := median + 1
	if nodeType.IsInternal() {
		leftEnd = median
	}
	for i := 0; i < leftEnd; i++ {
		left.AddCell(node.CellBytes(i))
	}
	for i := median + 1; i < n; i++ {
		right.AddCell(node.CellBytes(i))
	}

	if nodeType.IsInternal() {
		medianChild, err := childPage(node, median)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		left.SetRightPage(medianChild)
		right.SetRightPage(node.RightPage())
	}

	sepKey, err = cellKey(nodeType, node, median)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	return left, right, sepKey, 0, nil
}
