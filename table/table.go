// Package table is a thin facade over the pager: it is the one
// handle an application holds open, and it is what Cursor and
// Statement are built on top of.
package table

import (
	"github.com/pkg/errors"

	"bptreedb/layout"
	"bptreedb/node"
	"bptreedb/pager"
)

// Table owns a pager and exposes the handful of operations the rest
// of the engine needs: reading pages as typed nodes, allocating new
// ones, and persisting everything to disk.
type Table struct {
	pager *pager.Pager
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Table, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open table")
	}
	return &Table{pager: p}, nil
}

// RootNode loads the root page (always page 0) as a typed node.
func (t *Table) RootNode() (node.Node, error) {
	cp, err := t.pager.RootPage()
	if err != nil {
		return nil, err
	}
	return node.Load(cp)
}

// GetNode loads the page numbered num as a typed node.
func (t *Table) GetNode(num uint64) (node.Node, error) {
	cp, err := t.pager.GetPage(num)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, errors.Wrapf(ErrNoSuchPage, "page %d", num)
	}
	return node.Load(cp)
}

// ErrNoSuchPage is returned by GetNode for a page number beyond the
// allocated range.
var ErrNoSuchPage = errors.New("no such page")

// NewLeaf allocates a fresh, non-root leaf page and returns it as a
// typed node.
func (t *Table) NewLeaf() (node.Node, error) {
	_, cp, err := t.pager.NewPage(layout.KindLeaf, false)
	if err != nil {
		return nil, err
	}
	return node.Load(cp)
}

// NewInternal allocates a fresh, non-root internal page and returns
// it as a typed node.
func (t *Table) NewInternal() (node.Node, error) {
	_, cp, err := t.pager.NewPage(layout.KindInternal, false)
	if err != nil {
		return nil, err
	}
	return node.Load(cp)
}

// PromoteRoot performs root promotion (spec §4.6 step e): the current
// root's content is copied into a newly allocated page, and page 0 is
// rewritten as a fresh internal root. It returns the copy as a typed
// node (its Page() is the copy's page number), which the caller
// installs as the new root's child.
func (t *Table) PromoteRoot() (node.Node, error) {
	_, cp, err := t.pager.NewRoot()
	if err != nil {
		return nil, err
	}
	return node.Load(cp)
}

// RootPageNumber is always 0 (spec I9).
func (t *Table) RootPageNumber() uint64 { return pager.RootPageNumber }

// Flush writes every cached page, dirty or not, back to the file.
func (t *Table) Flush() error { return t.pager.Flush() }

// Close flushes and closes the underlying file.
func (t *Table) Close() error { return t.pager.Close() }
