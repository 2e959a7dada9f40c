package pager

import (
	"errors"

	"github.com/joeandaverde/ridgedb/internal/storage"
)

// CursorType distinguishes a read-only cursor from one that may mutate
// the tree it is positioned over.
type CursorType byte

const (
	CursorUnknown CursorType = 0
	CursorRead    CursorType = 1
	CursorWrite   CursorType = 2
)

// frame is one level of the path from the tree root down to the cursor's
// current leaf position.
type frame struct {
	page      *MemPage
	cellIndex int
}

// Cursor walks a b-tree's leaves in key order. Its position is an
// explicit stack of frames from root to leaf, enabling Next/Prev to move
// between leaves by popping back up to the nearest ancestor with an
// unvisited sibling and descending again.
type Cursor struct {
	Name string

	typ      CursorType
	rootPage int
	pager    Pager

	stack []frame

	// atEnd/atStart record cursor exhaustion without a valid current cell.
	atEnd   bool
	atStart bool
}

// NewCursor opens a cursor over the b-tree rooted at rootPage.
func NewCursor(p Pager, typ CursorType, rootPage int, name string) (*Cursor, error) {
	return &Cursor{
		Name:     name,
		pager:    p,
		typ:      typ,
		rootPage: rootPage,
	}, nil
}

func (c *Cursor) currentFrame() *frame {
	if len(c.stack) == 0 {
		return nil
	}
	return &c.stack[len(c.stack)-1]
}

// leftmostPath descends from page, always taking the first child, pushing
// a frame at every level, until it reaches a leaf.
func (c *Cursor) leftmostPath(page *MemPage) error {
	c.stack = append(c.stack, frame{page: page, cellIndex: 0})
	if !page.Type().IsInternal() {
		return nil
	}

	childNum := page.RightPage()
	if page.CellCount() > 0 {
		var err error
		childNum, err = childPage(page, 0)
		if err != nil {
			return err
		}
	}
	child, err := c.pager.Read(childNum)
	if err != nil {
		return err
	}
	return c.leftmostPath(child)
}

// rightmostPath descends from page, always taking the last child
// (RightPage), pushing a frame at every level.
func (c *Cursor) rightmostPath(page *MemPage) error {
	if page.Type().IsInternal() {
		childNum := page.RightPage()
		c.stack = append(c.stack, frame{page: page, cellIndex: page.CellCount()})
		child, err := c.pager.Read(childNum)
		if err != nil {
			return err
		}
		return c.rightmostPath(child)
	}

	idx := page.CellCount() - 1
	if idx < 0 {
		idx = 0
	}
	c.stack = append(c.stack, frame{page: page, cellIndex: idx})
	return nil
}

// Rewind positions the cursor at the first entry in the tree. Returns
// false if the tree is empty.
func (c *Cursor) Rewind() (bool, error) {
	root, err := c.pager.Read(c.rootPage)
	if err != nil {
		return false, err
	}
	c.stack = nil
	c.atEnd = false
	c.atStart = false

	if err := c.leftmostPath(root); err != nil {
		return false, err
	}

	leaf := c.currentFrame()
	if leaf.page.CellCount() == 0 {
		c.atEnd = true
		return false, nil
	}
	return true, nil
}

// RewindToEnd positions the cursor at the last entry in the tree. Returns
// false if the tree is empty.
func (c *Cursor) RewindToEnd() (bool, error) {
	root, err := c.pager.Read(c.rootPage)
	if err != nil {
		return false, err
	}
	c.stack = nil
	c.atEnd = false
	c.atStart = false

	if err := c.rightmostPath(root); err != nil {
		return false, err
	}

	leaf := c.currentFrame()
	if leaf.page.CellCount() == 0 {
		c.atStart = true
		return false, nil
	}
	return true, nil
}

// Get returns the table record at the cursor's current position.
func (c *Cursor) Get() (*storage.Record, error) {
	f := c.currentFrame()
	if f == nil || c.atEnd || c.atStart {
		return nil, errors.New("pager: cursor has no current record")
	}
	return f.page.ReadRecord(f.cellIndex)
}

// CurrentCell is an alias for Get, named after the cell the cursor is
// positioned on rather than the record it decodes to.
func (c *Cursor) CurrentCell() (*storage.Record, error) {
	return c.Get()
}

// CurrentKey returns the key of the cell at the cursor's current
// position, whether the tree underneath is a table or an index.
func (c *Cursor) CurrentKey() (uint32, error) {
	f := c.currentFrame()
	if f == nil || c.atEnd || c.atStart {
		return 0, errors.New("pager: cursor has no current record")
	}
	return cellKey(f.page.Type(), f.page, f.cellIndex)
}

// CurrentIndexCell returns the indexed (key, primary key) pair at the
// cursor's current position, whether that position is an index-leaf
// cell or an index-internal separator - the latter is itself a live
// entry, interleaved between the internal node's children.
func (c *Cursor) CurrentIndexCell() (*storage.IndexLeafCell, error) {
	f := c.currentFrame()
	if f == nil || c.atEnd || c.atStart {
		return nil, errors.New("pager: cursor has no current record")
	}
	if f.page.Type() == PageTypeInternalIndex {
		cell, err := f.page.ReadIndexInternalCell(f.cellIndex)
		if err != nil {
			return nil, err
		}
		return &storage.IndexLeafCell{Key: cell.Key, PrimaryKey: cell.PrimaryKey}, nil
	}
	return storage.ReadIndexLeafCell(f.page.CellBytes(f.cellIndex))
}

// Next advances the cursor to the next entry in key order. For a table
// tree this is always the next leaf cell. For an index tree, an
// internal node's cells are themselves live entries interleaved with
// its children, so the cursor may stop on an index-internal frame
// instead of a leaf - the in-order sequence for a node with children
// child[0..n] and cells cell[0..n-1] is child[0], cell[0], child[1],
// cell[1], ..., child[n-1], cell[n-1], child[n].
func (c *Cursor) Next() (bool, error) {
	if c.atEnd {
		return false, nil
	}

	if len(c.stack) == 0 {
		return c.Rewind()
	}

	top := c.currentFrame()
	if top.page.Type() == PageTypeInternalIndex {
		return c.descendNext()
	}

	top.cellIndex++
	if top.cellIndex < top.page.CellCount() {
		c.atStart = false
		return true, nil
	}

	return c.climb()
}

// climb pops back to the nearest ancestor with another position left to
// visit. A table-internal ancestor always has another child to descend
// into. An index-internal ancestor's cellIndex still names the child
// subtree that was just exhausted - if a cell follows it, that cell is
// itself the next entry and climb stops there without descending
// further; otherwise it keeps climbing.
func (c *Cursor) climb() (bool, error) {
	for len(c.stack) > 1 {
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.currentFrame()

		if parent.page.Type() == PageTypeInternalIndex && parent.cellIndex < parent.page.CellCount() {
			c.atStart = false
			return true, nil
		}

		parent.cellIndex++
		var childNum int
		var err error
		if parent.cellIndex < parent.page.CellCount() {
			childNum, err = childPage(parent.page, parent.cellIndex)
		} else if parent.cellIndex == parent.page.CellCount() {
			childNum = parent.page.RightPage()
		} else {
			continue
		}
		if err != nil {
			return false, err
		}

		child, err := c.pager.Read(childNum)
		if err != nil {
			return false, err
		}
		if err := c.leftmostPath(child); err != nil {
			return false, err
		}

		newLeaf := c.currentFrame()
		if newLeaf.page.CellCount() > 0 {
			return true, nil
		}
		// Empty sibling leaf; keep climbing.
	}

	c.atEnd = true
	return false, nil
}

// descendNext advances past the index-internal separator the cursor is
// currently positioned on, descending into the next child subtree's
// leftmost entry.
func (c *Cursor) descendNext() (bool, error) {
	top := c.currentFrame()
	top.cellIndex++

	var childNum int
	var err error
	if top.cellIndex < top.page.CellCount() {
		childNum, err = childPage(top.page, top.cellIndex)
	} else {
		childNum = top.page.RightPage()
	}
	if err != nil {
		return false, err
	}

	child, err := c.pager.Read(childNum)
	if err != nil {
		return false, err
	}
	if err := c.leftmostPath(child); err != nil {
		return false, err
	}

	newLeaf := c.currentFrame()
	if newLeaf.page.CellCount() > 0 {
		c.atStart = false
		return true, nil
	}
	return c.climb()
}

// Prev moves the cursor to the previous entry in key order, the mirror
// image of Next.
func (c *Cursor) Prev() (bool, error) {
	if c.atStart {
		return false, nil
	}

	if len(c.stack) == 0 {
		return c.RewindToEnd()
	}

	top := c.currentFrame()
	if top.page.Type() == PageTypeInternalIndex {
		return c.ascendPrev()
	}

	top.cellIndex--
	if top.cellIndex >= 0 {
		c.atEnd = false
		return true, nil
	}

	return c.climbPrev()
}

// climbPrev is climb's mirror image: an index-internal ancestor's
// cellIndex names the child just exhausted, so the cell immediately
// before it (cellIndex-1) is the next entry going backward, if one
// exists.
func (c *Cursor) climbPrev() (bool, error) {
	for len(c.stack) > 1 {
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.currentFrame()

		if parent.page.Type() == PageTypeInternalIndex && parent.cellIndex > 0 {
			parent.cellIndex--
			c.atEnd = false
			return true, nil
		}

		parent.cellIndex--
		if parent.cellIndex < 0 {
			continue
		}

		childNum, err := childPage(parent.page, parent.cellIndex)
		if err != nil {
			return false, err
		}
		child, err := c.pager.Read(childNum)
		if err != nil {
			return false, err
		}
		if err := c.rightmostPath(child); err != nil {
			return false, err
		}

		newLeaf := c.currentFrame()
		if newLeaf.page.CellCount() > 0 {
			return true, nil
		}
	}

	c.atStart = true
	return false, nil
}

// ascendPrev moves from the index-internal separator the cursor is
// currently positioned on to the last entry of the child subtree
// immediately to its left.
func (c *Cursor) ascendPrev() (bool, error) {
	top := c.currentFrame()
	childNum, err := childPage(top.page, top.cellIndex)
	if err != nil {
		return false, err
	}

	child, err := c.pager.Read(childNum)
	if err != nil {
		return false, err
	}
	if err := c.rightmostPath(child); err != nil {
		return false, err
	}

	newLeaf := c.currentFrame()
	if newLeaf.page.CellCount() > 0 {
		c.atEnd = false
		return true, nil
	}
	return c.climbPrev()
}

// seekTo positions the cursor at the entry nearest key, never failing:
// if key isn't present, the cursor stops where it would be inserted.
// found reports whether an exact match was reached. For an index tree,
// an exact match may land on an index-internal separator rather than a
// leaf cell, since the separator is itself a live entry.
// seekTo positions the cursor at the cell with the given key, or - for
// an index tree when no such cell exists - at the smallest key greater
// than it, which may be a separator cell in an ancestor internal node
// rather than anything in the leaf the descent lands on. Descending
// through an index-internal node only inspects the one separator the
// descent passes directly over (locateChild's choice of child i sits
// immediately left of cell[i], which is therefore the nearest known
// upper bound along this path); the leaf reached at the bottom is
// checked first since it may hold a tighter bound, and the remembered
// ancestor is used only if the leaf runs out without one.
func (c *Cursor) seekTo(key uint32) (found bool, err error) {
	root, err := c.pager.Read(c.rootPage)
	if err != nil {
		return false, err
	}
	c.stack = nil
	c.atEnd = false
	c.atStart = false

	page := root
	var ancestorStack []frame
	var pendingAncestor frame
	pendingAncestorDepth := -1

	for {
		if page.Type().IsInternal() {
			i, childNum, err := (&BTree{pager: c.pager}).locateChild(page, key)
			if err != nil {
				return false, err
			}

			if page.Type() == PageTypeInternalIndex && i < page.CellCount() {
				k, err := cellKey(page.Type(), page, i)
				if err != nil {
					return false, err
				}
				if k == key {
					c.stack = append(ancestorStack, frame{page: page, cellIndex: i})
					return true, nil
				}
				if k > key {
					pendingAncestor = frame{page: page, cellIndex: i}
					pendingAncestorDepth = len(ancestorStack)
				}
			}

			ancestorStack = append(ancestorStack, frame{page: page, cellIndex: i})
			child, err := c.pager.Read(childNum)
			if err != nil {
				return false, err
			}
			page = child
			continue
		}
		break
	}

	n := page.CellCount()
	pos := n
	exact := false
	for i := 0; i < n; i++ {
		k, err := cellKey(page.Type(), page, i)
		if err != nil {
			return false, err
		}
		if k == key {
			pos, exact = i, true
			break
		}
		if k > key {
			pos = i
			break
		}
	}

	if pos < n {
		c.stack = append(ancestorStack, frame{page: page, cellIndex: pos})
		return exact, nil
	}

	if pendingAncestorDepth >= 0 {
		c.stack = append(ancestorStack[:pendingAncestorDepth], pendingAncestor)
		return false, nil
	}

	c.stack = append(ancestorStack, frame{page: page, cellIndex: pos})
	c.atEnd = true
	return false, nil
}

// Seek positions the cursor at the cell matching key exactly.
func (c *Cursor) Seek(key uint32) (bool, error) {
	found, err := c.seekTo(key)
	if err != nil || !found {
		return false, err
	}
	return true, nil
}

// SeekGe positions the cursor at the first cell with key >= target.
func (c *Cursor) SeekGe(target uint32) (bool, error) {
	_, err := c.seekTo(target)
	if err != nil {
		return false, err
	}
	return !c.atEnd, nil
}

// SeekGt positions the cursor at the first cell with key > target.
func (c *Cursor) SeekGt(target uint32) (bool, error) {
	found, err := c.seekTo(target)
	if err != nil {
		return false, err
	}
	if found {
		return c.Next()
	}
	return !c.atEnd, nil
}

// SeekLe positions the cursor at the last cell with key <= target.
func (c *Cursor) SeekLe(target uint32) (bool, error) {
	found, err := c.seekTo(target)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}
	return c.Prev()
}

// SeekLt positions the cursor at the last cell with key < target.
func (c *Cursor) SeekLt(target uint32) (bool, error) {
	if _, err := c.seekTo(target); err != nil {
		return false, err
	}
	return c.Prev()
}

// NextKey derives the next row id for the table this cursor is open
// over: one past the greatest key currently stored, or 1 for an empty
// table. Deriving it from the tree itself, rather than tracking a
// counter in process memory, keeps row id assignment correct across
// independently opened handles onto the same database file and leaves
// no state that needs resetting between them. The cursor is repositioned
// by this call; callers that also use it for an insert rely on Insert
// doing its own key-based tree search rather than inserting at whatever
// position the cursor is left on.
func (c *Cursor) NextKey() (uint32, error) {
	hasRow, err := c.RewindToEnd()
	if err != nil {
		return 0, err
	}
	if !hasRow {
		return 1, nil
	}
	key, err := c.CurrentKey()
	if err != nil {
		return 0, err
	}
	return key + 1, nil
}

// Insert places a record in the table b-tree this cursor is open over.
func (c *Cursor) Insert(record storage.Record) error {
	return NewBTree(c.rootPage, c.pager).Insert(&record)
}

// InsertIndexCell places an index-leaf cell in the index b-tree this
// cursor is open over.
func (c *Cursor) InsertIndexCell(cell storage.IndexLeafCell) error {
	return NewBTree(c.rootPage, c.pager).InsertIndexCell(&cell)
}
