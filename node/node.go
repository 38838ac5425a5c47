// Package node implements typed operations on the bytes of a single
// cached page: ordered search, cell insertion, fullness detection and
// splitting. A Node is a view over a pager.CachedPage; it never owns
// the page's lifetime, only its interpretation.
package node

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"bptreedb/cell"
	"bptreedb/layout"
	"bptreedb/page"
	"bptreedb/pager"
)

// Sentinel errors a caller recovers from locally (IsFull is always
// handled by the cursor via a split; the others surface to the
// statement executor as short strings per spec §7).
var (
	ErrIsFull          = errors.New("node is full")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrKeyDoesNotExist = errors.New("key does not exist")
	ErrValueTooLarge   = errors.New("value too large for a page")
)

// Node is the common surface shared by leaf and internal nodes.
type Node interface {
	Page() uint64
	Kind() layout.Kind
	IsRoot() bool
	SetIsRoot(bool)
	NumCells() uint64
	NodeHighKey() uint64
	FindCellNum(key uint64) uint64
	ReadCellBytes(num uint64) ([]byte, error)
}

// Load inspects the cached page's kind byte and returns the
// appropriate typed Node.
func Load(cp *pager.CachedPage) (Node, error) {
	var kind layout.Kind
	var err error
	cp.View(func(b *page.Bytes) {
		kind, err = page.Load(b)
	})
	if err != nil {
		return nil, err
	}
	switch kind {
	case layout.KindLeaf:
		return loadLeaf(cp), nil
	case layout.KindInternal:
		return loadInternal(cp), nil
	default:
		return nil, errors.Wrapf(page.ErrInvalidPage, "unknown kind %v", kind)
	}
}

func binarySearch(n int, probe func(i int) bool) int {
	return sort.Search(n, probe)
}

func readU64(b []byte, off int) uint64 { return binary.BigEndian.Uint64(b[off : off+8]) }
func putU64(b []byte, off int, v uint64) {
	binary.BigEndian.PutUint64(b[off:off+8], v)
}

// --- LeafNode ---------------------------------------------------------

// LeafNode is a typed view over a leaf page.
type LeafNode struct {
	cp *pager.CachedPage

	isRoot    bool
	overflow  uint64
	nextSib   uint64
	numCells  uint64
	freeStart uint64
	freeEnd   uint64
}

func loadLeaf(cp *pager.CachedPage) *LeafNode {
	n := &LeafNode{cp: cp}
	n.refresh()
	return n
}

func (n *LeafNode) refresh() {
	n.cp.View(func(b *page.Bytes) {
		n.isRoot = page.IsRoot(b)
		n.overflow = readU64(b[:], layout.LeafOverflowPtrOffset)
		n.nextSib = readU64(b[:], layout.LeafNextSiblingOffset)
		n.numCells = readU64(b[:], layout.LeafNumCellsOffset)
		n.freeStart = readU64(b[:], layout.LeafFreeSpaceStartOffset)
		n.freeEnd = readU64(b[:], layout.LeafFreeSpaceEndOffset)
	})
}

func (n *LeafNode) persistHeader(b *page.Bytes) {
	page.SetIsRoot(b, n.isRoot)
	putU64(b[:], layout.LeafOverflowPtrOffset, n.overflow)
	putU64(b[:], layout.LeafNextSiblingOffset, n.nextSib)
	putU64(b[:], layout.LeafNumCellsOffset, n.numCells)
	putU64(b[:], layout.LeafFreeSpaceStartOffset, n.freeStart)
	putU64(b[:], layout.LeafFreeSpaceEndOffset, n.freeEnd)
}

func (n *LeafNode) Page() uint64      { return n.cp.Num }
func (n *LeafNode) Kind() layout.Kind { return layout.KindLeaf }
func (n *LeafNode) IsRoot() bool      { return n.isRoot }
func (n *LeafNode) NumCells() uint64  { return n.numCells }

func (n *LeafNode) SetIsRoot(v bool) {
	n.isRoot = v
	n.cp.With(func(b *page.Bytes) { page.SetIsRoot(b, v) })
}

// NextSibling returns the next-leaf pointer, or (0, false) if none.
func (n *LeafNode) NextSibling() (uint64, bool) {
	if n.nextSib == layout.SentinelPointer {
		return 0, false
	}
	return n.nextSib, true
}

// SetNextSibling links this leaf to the given page number.
func (n *LeafNode) SetNextSibling(page_ uint64) {
	n.nextSib = page_
	n.cp.With(func(b *page.Bytes) {
		putU64(b[:], layout.LeafNextSiblingOffset, page_)
	})
}

// OverflowPointer returns the overflow page pointer, or (0, false) if
// none. Overflow pages are reserved but not implemented (spec O4).
func (n *LeafNode) OverflowPointer() (uint64, bool) {
	if n.overflow == layout.SentinelPointer {
		return 0, false
	}
	return n.overflow, true
}

func (n *LeafNode) slotOffset(i uint64) int {
	return layout.LeafHeaderSize + int(i)*layout.LeafKeyCellSize
}

func (n *LeafNode) keyAt(b *page.Bytes, i uint64) uint64 {
	off := n.slotOffset(i)
	return readU64(b[:], off+layout.LeafSlotKeyOffset)
}

// FindCellNum performs the lower-bound binary search described in
// spec §4.4: the first index whose key is >= target, which is exactly
// target's position when present.
func (n *LeafNode) FindCellNum(key uint64) uint64 {
	var idx int
	n.cp.View(func(b *page.Bytes) {
		idx = binarySearch(int(n.numCells), func(i int) bool {
			return n.keyAt(b, uint64(i)) >= key
		})
	})
	return uint64(idx)
}

// NodeHighKey returns the key of the last cell.
func (n *LeafNode) NodeHighKey() uint64 {
	if n.numCells == 0 {
		return cell.SentinelKey
	}
	var k uint64
	n.cp.View(func(b *page.Bytes) { k = n.keyAt(b, n.numCells-1) })
	return k
}

// ReadCellBytes returns the decoded value content for cell num.
func (n *LeafNode) ReadCellBytes(num uint64) ([]byte, error) {
	if num >= n.numCells {
		return nil, errors.Errorf("leaf cell %d out of range (numCells=%d)", num, n.numCells)
	}
	var content []byte
	var err error
	n.cp.View(func(b *page.Bytes) {
		off := n.slotOffset(num)
		ptr := readU64(b[:], off+layout.LeafSlotPointerOffset)
		content, err = cell.DecodeValueBlob(b[ptr:])
	})
	return content, err
}

// CellAt returns the fully decoded cell (key, overflow flag, content)
// at index num.
func (n *LeafNode) CellAt(num uint64) (cell.LeafCell, error) {
	if num >= n.numCells {
		return cell.LeafCell{}, errors.Errorf("leaf cell %d out of range (numCells=%d)", num, n.numCells)
	}
	var c cell.LeafCell
	n.cp.View(func(b *page.Bytes) { c = n.cellAt(b, num) })
	return c, nil
}

// cellAt decodes the full cell at index num (key, overflow, content).
func (n *LeafNode) cellAt(b *page.Bytes, num uint64) cell.LeafCell {
	off := n.slotOffset(num)
	overflow, key, _ := cell.DecodeKeyPrefix(b[off : off+cell.KeyPrefixSize])
	ptr := readU64(b[:], off+layout.LeafSlotPointerOffset)
	content, _ := cell.DecodeValueBlob(b[ptr:])
	return cell.LeafCell{Overflow: overflow, Key: key, Content: content}
}

// IsFull reports whether inserting one more key slot could collide
// with the value heap (spec §4.4.2): true when there is not strictly
// more than one additional key-slot of room.
func (n *LeafNode) IsFull() bool {
	return n.freeEnd-n.freeStart <= uint64(2*layout.LeafKeyCellSize)
}

func requiredSpace(c cell.LeafCell) uint64 {
	return uint64(layout.LeafKeyCellSize) + uint64(layout.LeafValueLengthSize+len(c.Content))
}

// InsertCell inserts c in sorted position. Duplicate keys return
// ErrDuplicateKey; a value that would not fit even in an empty page
// returns ErrValueTooLarge (spec O4); a node without room for c
// returns ErrIsFull so the caller can split.
func (n *LeafNode) InsertCell(c cell.LeafCell) error {
	idx := n.FindCellNum(c.Key)
	if idx < n.numCells {
		var dup bool
		n.cp.View(func(b *page.Bytes) { dup = n.keyAt(b, idx) == c.Key })
		if dup {
			return ErrDuplicateKey
		}
	}
	if requiredSpace(c) > uint64(layout.LeafDataRegionSize()-layout.LeafKeyCellSize) {
		return ErrValueTooLarge
	}
	if n.IsFull() || requiredSpace(c) > n.freeEnd-n.freeStart-uint64(layout.LeafKeyCellSize) {
		return ErrIsFull
	}

	n.cp.With(func(b *page.Bytes) {
		insertLeafCellAt(b, &n.numCells, &n.freeStart, &n.freeEnd, idx, c)
		n.persistHeader(b)
	})
	return nil
}

// insertLeafCellAt writes c's value blob at the current free-space
// end and its key slot at position idx, shifting any higher slots
// right by one slot width.
func insertLeafCellAt(b *page.Bytes, numCells, freeStart, freeEnd *uint64, idx uint64, c cell.LeafCell) {
	blob := c.EncodeValueBlob()
	newFreeEnd := *freeEnd - uint64(len(blob))
	copy(b[newFreeEnd:*freeEnd], blob)

	slotOff := func(i uint64) int { return layout.LeafHeaderSize + int(i)*layout.LeafKeyCellSize }
	for i := *numCells; i > idx; i-- {
		copy(b[slotOff(i):slotOff(i)+layout.LeafKeyCellSize], b[slotOff(i-1):slotOff(i-1)+layout.LeafKeyCellSize])
	}

	prefix := c.EncodeKeyPrefix()
	off := slotOff(idx)
	copy(b[off:off+cell.KeyPrefixSize], prefix[:])
	putU64(b[:], off+layout.LeafSlotPointerOffset, newFreeEnd)

	*numCells++
	*freeStart += uint64(layout.LeafKeyCellSize)
	*freeEnd = newFreeEnd
}

// Split redistributes self's cells plus the incoming cell between
// self (left half) and sibling (right half): for cellsTotal =
// numCells+1, rightCount = floor(cellsTotal/2), leftCount = cellsTotal
// - rightCount. The caller is responsible for linking
// self.next_sibling to sibling's page number afterward.
func (n *LeafNode) Split(sibling *LeafNode, incoming cell.LeafCell) error {
	var all []cell.LeafCell
	n.cp.View(func(b *page.Bytes) {
		all = make([]cell.LeafCell, 0, n.numCells+1)
		for i := uint64(0); i < n.numCells; i++ {
			all = append(all, n.cellAt(b, i))
		}
	})

	pos := sort.Search(len(all), func(i int) bool { return all[i].Key >= incoming.Key })
	all = append(all, cell.LeafCell{})
	copy(all[pos+1:], all[pos:])
	all[pos] = incoming

	total := len(all)
	rightCount := total / 2
	leftCount := total - rightCount

	oldNext := n.nextSib

	leftBytes := freshLeafBytes(n.isRoot)
	leftState := leafState{freeStart: uint64(layout.LeafHeaderSize), freeEnd: uint64(layout.PageSize)}
	for _, c := range all[:leftCount] {
		insertLeafCellAt(&leftBytes, &leftState.numCells, &leftState.freeStart, &leftState.freeEnd, leftState.numCells, c)
	}
	putU64(leftBytes[:], layout.LeafNumCellsOffset, leftState.numCells)
	putU64(leftBytes[:], layout.LeafFreeSpaceStartOffset, leftState.freeStart)
	putU64(leftBytes[:], layout.LeafFreeSpaceEndOffset, leftState.freeEnd)
	putU64(leftBytes[:], layout.LeafNextSiblingOffset, layout.SentinelPointer)

	rightBytes := freshLeafBytes(false)
	rightState := leafState{freeStart: uint64(layout.LeafHeaderSize), freeEnd: uint64(layout.PageSize)}
	for _, c := range all[leftCount:] {
		insertLeafCellAt(&rightBytes, &rightState.numCells, &rightState.freeStart, &rightState.freeEnd, rightState.numCells, c)
	}
	putU64(rightBytes[:], layout.LeafNumCellsOffset, rightState.numCells)
	putU64(rightBytes[:], layout.LeafFreeSpaceStartOffset, rightState.freeStart)
	putU64(rightBytes[:], layout.LeafFreeSpaceEndOffset, rightState.freeEnd)
	putU64(rightBytes[:], layout.LeafNextSiblingOffset, oldNext)

	n.cp.With(func(b *page.Bytes) { *b = leftBytes })
	sibling.cp.With(func(b *page.Bytes) { *b = rightBytes })
	n.refresh()
	sibling.refresh()
	return nil
}

type leafState struct {
	numCells  uint64
	freeStart uint64
	freeEnd   uint64
}

func freshLeafBytes(isRoot bool) page.Bytes {
	return page.NewBuilder().Kind(layout.KindLeaf).IsRoot(isRoot).Build()
}

// --- InternalNode -------------------------------------------------------

// InternalNode is a typed view over an internal page.
type InternalNode struct {
	cp *pager.CachedPage

	isRoot     bool
	numCells   uint64
	rightChild uint64
}

func loadInternal(cp *pager.CachedPage) *InternalNode {
	n := &InternalNode{cp: cp}
	n.refresh()
	return n
}

func (n *InternalNode) refresh() {
	n.cp.View(func(b *page.Bytes) {
		n.isRoot = page.IsRoot(b)
		n.numCells = readU64(b[:], layout.InternalNumCellsOffset)
		n.rightChild = readU64(b[:], layout.InternalRightChildOffset)
	})
}

func (n *InternalNode) persistHeader(b *page.Bytes) {
	page.SetIsRoot(b, n.isRoot)
	putU64(b[:], layout.InternalNumCellsOffset, n.numCells)
	putU64(b[:], layout.InternalRightChildOffset, n.rightChild)
}

func (n *InternalNode) Page() uint64      { return n.cp.Num }
func (n *InternalNode) Kind() layout.Kind { return layout.KindInternal }
func (n *InternalNode) IsRoot() bool      { return n.isRoot }
func (n *InternalNode) NumCells() uint64  { return n.numCells }

func (n *InternalNode) SetIsRoot(v bool) {
	n.isRoot = v
	n.cp.With(func(b *page.Bytes) { page.SetIsRoot(b, v) })
}

// RightChild returns the right-most-child pointer, or (0, false) if
// unset (a brand-new internal node with no children yet).
func (n *InternalNode) RightChild() (uint64, bool) {
	if n.rightChild == layout.SentinelPointer {
		return 0, false
	}
	return n.rightChild, true
}

// SetRightChild sets the right-most-child pointer directly. Used once,
// by root promotion (spec O2): a freshly promoted root seeds its
// right-most-child with the old root's copy before the sibling's
// InsertCell call pulls that pointer down into a bounded cell.
func (n *InternalNode) SetRightChild(page_ uint64) {
	n.rightChild = page_
	n.cp.With(func(b *page.Bytes) {
		putU64(b[:], layout.InternalRightChildOffset, page_)
	})
}

func (n *InternalNode) cellOffset(i uint64) int {
	return layout.InternalHeaderSize + int(i)*layout.InternalCellSize
}

func (n *InternalNode) cellAt(b *page.Bytes, i uint64) cell.InternalCell {
	off := n.cellOffset(i)
	c, _ := cell.InternalCellFromBytes(b[off : off+layout.InternalCellSize])
	return c
}

func writeInternalCellAt(b *page.Bytes, i uint64, c cell.InternalCell) {
	off := layout.InternalHeaderSize + int(i)*layout.InternalCellSize
	raw := c.GetKeyBytes()
	copy(b[off:off+layout.InternalCellSize], raw[:])
}

// FindCellNum returns the smallest i such that key <= separator[i],
// or numCells if no such cell exists, meaning "follow the
// right-most-child pointer" (spec §4.4, left-leaning convention, I7).
func (n *InternalNode) FindCellNum(key uint64) uint64 {
	var idx int
	n.cp.View(func(b *page.Bytes) {
		idx = binarySearch(int(n.numCells), func(i int) bool {
			return n.cellAt(b, uint64(i)).Key >= key
		})
	})
	return uint64(idx)
}

// NodeHighKey returns the key of the last cell.
func (n *InternalNode) NodeHighKey() uint64 {
	if n.numCells == 0 {
		return cell.SentinelKey
	}
	var k uint64
	n.cp.View(func(b *page.Bytes) { k = n.cellAt(b, n.numCells-1).Key })
	return k
}

// ReadCellBytes returns the 16-byte encoding of cell num; for num ==
// numCells it returns the high key followed by the right-most-child
// pointer (spec §4.4).
func (n *InternalNode) ReadCellBytes(num uint64) ([]byte, error) {
	if num > n.numCells {
		return nil, errors.Errorf("internal cell %d out of range (numCells=%d)", num, n.numCells)
	}
	var c cell.InternalCell
	if num == n.numCells {
		c = cell.InternalCell{Key: n.NodeHighKey(), Pointer: n.rightChild}
	} else {
		n.cp.View(func(b *page.Bytes) { c = n.cellAt(b, num) })
	}
	raw := c.GetKeyBytes()
	return raw[:], nil
}

// IsFull reports whether one more cell would exceed INTERNAL_MAX_KEYS.
func (n *InternalNode) IsFull() bool {
	return n.numCells+1 > uint64(layout.InternalMaxKeys)
}

// InsertCell inserts c in sorted position. When c lands beyond every
// existing separator, the existing right-most-child pointer is pulled
// down into a new bounded cell keyed by c's key, and c's pointer
// becomes the new right-most-child — see DESIGN.md for why this
// mirrors root promotion's "absorb the high side" rule.
func (n *InternalNode) InsertCell(c cell.InternalCell) error {
	idx := n.FindCellNum(c.Key)
	if idx < n.numCells {
		var dup bool
		n.cp.View(func(b *page.Bytes) { dup = n.cellAt(b, idx).Key == c.Key })
		if dup {
			return ErrDuplicateKey
		}
	}
	if n.IsFull() {
		return ErrIsFull
	}

	n.cp.With(func(b *page.Bytes) {
		if idx == n.numCells {
			if n.rightChild == layout.SentinelPointer {
				n.rightChild = c.Pointer
			} else {
				writeInternalCellAt(b, n.numCells, cell.InternalCell{Key: c.Key, Pointer: n.rightChild})
				n.rightChild = c.Pointer
				n.numCells++
			}
		} else {
			for i := n.numCells; i > idx; i-- {
				prev := n.cellAt(b, i-1)
				writeInternalCellAt(b, i, prev)
			}
			writeInternalCellAt(b, idx, c)
			n.numCells++
		}
		n.persistHeader(b)
	})
	return nil
}

// Update rewrites the cell currently keyed by key to c. Used after a
// split to rewrite the parent's existing separator for the split
// node. Fails with ErrKeyDoesNotExist if key is absent.
func (n *InternalNode) Update(key uint64, c cell.InternalCell) error {
	idx := n.FindCellNum(key)
	var found bool
	n.cp.View(func(b *page.Bytes) {
		found = idx < n.numCells && n.cellAt(b, idx).Key == key
	})
	if !found {
		return ErrKeyDoesNotExist
	}
	n.cp.With(func(b *page.Bytes) { writeInternalCellAt(b, idx, c) })
	return nil
}

// Split redistributes self's cells and the incoming cell between self
// and sibling. When the incoming cell lands past every separator, the
// old right-most-child is pulled into the ordering under the incoming
// key and the incoming pointer becomes the right half's
// right-most-child; otherwise the old right-most-child stays the right
// half's right-most-child. The entries are divided by the same
// cellsTotal/2 rule as the leaf, with one
// refinement for internal nodes (spec O3): the cell that falls at the
// left/right boundary is promoted rather than kept in either half —
// its key is returned to the caller as the new separator, and its
// pointer becomes the left half's right-most-child. See DESIGN.md.
func (n *InternalNode) Split(sibling *InternalNode, incoming cell.InternalCell) (uint64, error) {
	idx := n.FindCellNum(incoming.Key)

	var entries []cell.InternalCell
	var tailPtr uint64
	n.cp.View(func(b *page.Bytes) {
		existing := make([]cell.InternalCell, n.numCells)
		for i := uint64(0); i < n.numCells; i++ {
			existing[i] = n.cellAt(b, i)
		}
		if idx == n.numCells {
			entries = append(existing, cell.InternalCell{Key: incoming.Key, Pointer: n.rightChild})
			tailPtr = incoming.Pointer
		} else {
			entries = make([]cell.InternalCell, 0, len(existing)+1)
			entries = append(entries, existing[:idx]...)
			entries = append(entries, incoming)
			entries = append(entries, existing[idx:]...)
			tailPtr = n.rightChild
		}
	})

	total := len(entries)
	rightCount := total / 2
	leftCount := total - rightCount

	promoted := entries[leftCount-1]

	leftBytes := freshInternalBytes(n.isRoot)
	for i, c := range entries[:leftCount-1] {
		writeInternalCellAt(&leftBytes, uint64(i), c)
	}
	putU64(leftBytes[:], layout.InternalNumCellsOffset, uint64(leftCount-1))
	putU64(leftBytes[:], layout.InternalRightChildOffset, promoted.Pointer)

	rightBytes := freshInternalBytes(false)
	for i, c := range entries[leftCount:] {
		writeInternalCellAt(&rightBytes, uint64(i), c)
	}
	putU64(rightBytes[:], layout.InternalNumCellsOffset, uint64(total-leftCount))
	putU64(rightBytes[:], layout.InternalRightChildOffset, tailPtr)

	n.cp.With(func(b *page.Bytes) { *b = leftBytes })
	sibling.cp.With(func(b *page.Bytes) { *b = rightBytes })
	n.refresh()
	sibling.refresh()

	return promoted.Key, nil
}

func freshInternalBytes(isRoot bool) page.Bytes {
	return page.NewBuilder().Kind(layout.KindInternal).IsRoot(isRoot).Build()
}
