// Package cursor implements ordered lookup, insertion with cascading
// splits, and full-table scanning on top of a table.Table. It is the
// only package that understands how a root-to-leaf descent and a
// leaf-to-root split cascade fit together.
package cursor

import (
	"github.com/pkg/errors"

	"bptreedb/cell"
	"bptreedb/node"
	"bptreedb/table"
)

// Record is one stored key/value pair.
type Record struct {
	Key   uint64
	Value []byte
}

// State describes where a scan is relative to the table's contents.
type State int

const (
	AtStart State = iota
	InProgress
	AtEnd
)

// Cursor is a short-lived handle bound to one table. It carries no
// state between calls; Insert and Select each perform their own
// root-to-leaf descent.
type Cursor struct {
	table *table.Table
}

// New returns a cursor over t.
func New(t *table.Table) *Cursor {
	return &Cursor{table: t}
}

type breadcrumb struct {
	cellIdx uint64
	pageNum uint64
}

// descend walks from the root to the leaf that contains or would
// contain key, recording the internal cell index used at each level
// so a later split can be cascaded back up without re-searching.
func (c *Cursor) descend(key uint64) (*node.LeafNode, []breadcrumb, error) {
	var crumbs []breadcrumb

	n, err := c.table.RootNode()
	if err != nil {
		return nil, nil, err
	}

	for {
		switch typed := n.(type) {
		case *node.LeafNode:
			return typed, crumbs, nil
		case *node.InternalNode:
			idx := typed.FindCellNum(key)
			childPage, err := childPointerAt(typed, idx)
			if err != nil {
				return nil, nil, err
			}
			crumbs = append(crumbs, breadcrumb{cellIdx: idx, pageNum: typed.Page()})
			n, err = c.table.GetNode(childPage)
			if err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, errors.New("cursor: unknown node kind during descent")
		}
	}
}

// childPointerAt reads the child pointer internal cell idx routes to,
// following the right-most-child pointer when idx == NumCells().
func childPointerAt(n *node.InternalNode, idx uint64) (uint64, error) {
	if idx == n.NumCells() {
		rc, ok := n.RightChild()
		if !ok {
			return 0, errors.New("cursor: internal node has no right-most-child")
		}
		return rc, nil
	}
	raw, err := n.ReadCellBytes(idx)
	if err != nil {
		return 0, err
	}
	cl, err := cell.InternalCellFromBytes(raw)
	if err != nil {
		return 0, err
	}
	return cl.Pointer, nil
}

// Insert adds key/value to the tree, cascading splits up to and
// including a new root if necessary (spec §4.6).
func (c *Cursor) Insert(key uint64, value []byte) error {
	leaf, crumbs, err := c.descend(key)
	if err != nil {
		return err
	}

	lc := cell.NewLeafCell(key, value, false)
	err = leaf.InsertCell(lc)
	if err == nil {
		return nil
	}
	if err != node.ErrIsFull {
		return err
	}

	return c.splitLeaf(leaf, crumbs, lc)
}

func (c *Cursor) splitLeaf(leaf *node.LeafNode, crumbs []breadcrumb, incoming cell.LeafCell) error {
	siblingIface, err := c.table.NewLeaf()
	if err != nil {
		return err
	}
	sibling, ok := siblingIface.(*node.LeafNode)
	if !ok {
		return errors.New("cursor: NewLeaf returned non-leaf node")
	}

	if err := leaf.Split(sibling, incoming); err != nil {
		return err
	}
	leaf.SetNextSibling(sibling.Page())

	if leaf.IsRoot() {
		return c.promoteRoot(leaf.NodeHighKey(), sibling.Page())
	}
	return c.cascade(crumbs, leaf.Page(), leaf.NodeHighKey(), sibling.NodeHighKey(), sibling.Page())
}

// promoteRoot performs root promotion (spec §4.6 step e / §4.3
// new_root, with O2's resolution): the current root's bytes are
// copied to a new page number, page 0 is rewritten as a fresh
// internal root, and the copy is seeded directly as the new root's
// right-most-child — no placeholder separator key is ever written.
// The subsequent InsertCell of the sibling's cell then pulls that
// pointer down into a bounded cell, exactly as it would for any other
// internal insert that lands beyond every existing separator.
//
// separatorKey must be the true boundary between the copy (left) and
// the incoming sibling (right) — the split leaf's own high key, or the
// key an internal split promoted — never the sibling's or the tree's
// global high key; InsertCell pairs whatever key is passed here with
// the copy's pointer.
func (c *Cursor) promoteRoot(separatorKey, siblingPage uint64) error {
	copyIface, err := c.table.PromoteRoot()
	if err != nil {
		return err
	}

	rootIface, err := c.table.RootNode()
	if err != nil {
		return err
	}
	root, ok := rootIface.(*node.InternalNode)
	if !ok {
		return errors.New("cursor: promoted root is not internal")
	}

	root.SetRightChild(copyIface.Page())
	return root.InsertCell(cell.NewInternalCell(separatorKey, siblingPage))
}

// cascade applies a split's effect to the nearest ancestor recorded
// in crumbs: it rewrites the existing separator that used to bound
// the split node (if it had one) and inserts a new cell for the
// sibling, recursing upward — and promoting a new root — if the
// ancestor itself overflows.
func (c *Cursor) cascade(crumbs []breadcrumb, splitNodePage, leftHighKey, siblingHighKey, siblingPage uint64) error {
	if len(crumbs) == 0 {
		return errors.New("cursor: split a non-root node with no recorded parent")
	}
	top := crumbs[len(crumbs)-1]
	rest := crumbs[:len(crumbs)-1]

	parentIface, err := c.table.GetNode(top.pageNum)
	if err != nil {
		return err
	}
	parent, ok := parentIface.(*node.InternalNode)
	if !ok {
		return errors.New("cursor: cascade target is not internal")
	}

	// The cell to insert depends on whether the node that split was the
	// parent's right-most-child. When it wasn't, the branch below
	// rewrites its bounded separator via Update to the sibling's
	// (siblingHighKey, siblingPage) and then inserts (leftHighKey,
	// splitNodePage) just before it; that key is below the rewritten
	// separator, so InsertCell places it verbatim and never absorbs the
	// right-most-child. When it was, there is no existing separator to
	// rewrite: InsertCell will land past every existing cell and pull
	// the stale right-most-child (splitNodePage) down into a bounded
	// cell, so the key paired with it must be leftHighKey, not
	// siblingHighKey — otherwise every key up to siblingHighKey would
	// wrongly route into splitNodePage.
	var insert cell.InternalCell
	if top.cellIdx < parent.NumCells() {
		raw, err := parent.ReadCellBytes(top.cellIdx)
		if err != nil {
			return err
		}
		existing, err := cell.InternalCellFromBytes(raw)
		if err != nil {
			return err
		}
		if err := parent.Update(existing.Key, cell.NewInternalCell(siblingHighKey, siblingPage)); err != nil {
			return err
		}
		insert = cell.NewInternalCell(leftHighKey, splitNodePage)
	} else {
		insert = cell.NewInternalCell(leftHighKey, siblingPage)
	}

	err = parent.InsertCell(insert)
	if err == nil {
		return nil
	}
	if err != node.ErrIsFull {
		return err
	}

	newSiblingIface, err := c.table.NewInternal()
	if err != nil {
		return err
	}
	newSibling, ok := newSiblingIface.(*node.InternalNode)
	if !ok {
		return errors.New("cursor: NewInternal returned non-internal node")
	}

	promotedKey, err := parent.Split(newSibling, insert)
	if err != nil {
		return err
	}

	if parent.IsRoot() {
		return c.promoteRoot(promotedKey, newSibling.Page())
	}
	return c.cascade(rest, parent.Page(), promotedKey, newSibling.NodeHighKey(), newSibling.Page())
}

// Select returns every record in ascending key order by finding the
// left-most leaf and walking the next-sibling chain.
func (c *Cursor) Select() ([]Record, error) {
	n, err := c.table.RootNode()
	if err != nil {
		return nil, err
	}

	for {
		switch typed := n.(type) {
		case *node.LeafNode:
			return scan(c.table, typed)
		case *node.InternalNode:
			childPage, err := leftmostChild(typed)
			if err != nil {
				return nil, err
			}
			n, err = c.table.GetNode(childPage)
			if err != nil {
				return nil, err
			}
		default:
			return nil, errors.New("cursor: unknown node kind during scan")
		}
	}
}

func leftmostChild(n *node.InternalNode) (uint64, error) {
	if n.NumCells() > 0 {
		raw, err := n.ReadCellBytes(0)
		if err != nil {
			return 0, err
		}
		cl, err := cell.InternalCellFromBytes(raw)
		if err != nil {
			return 0, err
		}
		return cl.Pointer, nil
	}
	rc, ok := n.RightChild()
	if !ok {
		return 0, errors.New("cursor: empty internal node has no children")
	}
	return rc, nil
}

// scan walks the left-most leaf's next-sibling chain to the end,
// collecting every cell, and stops once a leaf has no next sibling.
// It does not track a State; the AtStart/InProgress/AtEnd values are
// not set or read anywhere in this package.
func scan(t *table.Table, leaf *node.LeafNode) ([]Record, error) {
	var out []Record
	cur := leaf

	for {
		n := cur.NumCells()
		for i := uint64(0); i < n; i++ {
			c, err := cur.CellAt(i)
			if err != nil {
				return nil, err
			}
			out = append(out, Record{Key: c.Key, Value: c.Content})
		}

		nextPage, ok := cur.NextSibling()
		if !ok {
			break
		}
		nextIface, err := t.GetNode(nextPage)
		if err != nil {
			return nil, err
		}
		nextLeaf, ok := nextIface.(*node.LeafNode)
		if !ok {
			return nil, errors.New("cursor: next-sibling is not a leaf")
		}
		cur = nextLeaf
	}

	return out, nil
}
