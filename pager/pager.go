// Package pager owns the backing file, the in-memory page cache, page
// allocation, and root promotion. It is the only thing in this module
// that touches the filesystem directly.
package pager

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"bptreedb/layout"
	"bptreedb/page"
)

// RootPageNumber is the page number of the root. It never changes
// over the lifetime of a file (spec I9): when the root overflows, its
// bytes are copied elsewhere and page 0 is rewritten in place.
const RootPageNumber = uint64(0)

// CachedPage is a lock-guarded page buffer. The pager and any live
// Node share it by pointer; the RWMutex is the Go
// analogue of the original's Arc<RwLock<Page>> and exists to guard
// against aliasing bugs, not to support concurrent access — this
// engine is single-threaded (spec §5).
type CachedPage struct {
	mu    sync.RWMutex
	Num   uint64
	Bytes page.Bytes
	Dirty bool
}

// With runs fn under a write lock and marks the page dirty.
func (c *CachedPage) With(fn func(b *page.Bytes)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.Bytes)
	c.Dirty = true
}

// View runs fn under a read lock without marking the page dirty.
func (c *CachedPage) View(fn func(b *page.Bytes)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(&c.Bytes)
}

// Snapshot returns a copy of the page's current bytes.
func (c *CachedPage) Snapshot() page.Bytes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Bytes
}

// Pager owns the file handle, the page cache, and page-number
// allocation.
type Pager struct {
	file     *os.File
	numPages uint64
	cache    map[uint64]*CachedPage
}

// Open opens or creates the backing file. If it is empty, page 0 is
// allocated as a root leaf; otherwise the existing page count is
// derived from the file length and page 0 is treated as the existing
// root.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open pager file %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat pager file")
	}

	p := &Pager{
		file:     f,
		numPages: uint64(info.Size()) / layout.PageSize,
		cache:    make(map[uint64]*CachedPage),
	}

	if p.numPages == 0 {
		if _, _, err := p.NewPage(layout.KindLeaf, true); err != nil {
			return nil, errors.Wrap(err, "allocate initial root page")
		}
	}

	return p, nil
}

// RootPage loads and returns the root page (always page 0).
func (p *Pager) RootPage() (*CachedPage, error) {
	cp, err := p.GetPage(RootPageNumber)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, errors.New("root page missing")
	}
	return cp, nil
}

// NewPage allocates a fresh page of the given kind, assigning it the
// next sequential page number. Page numbers are never reused.
func (p *Pager) NewPage(kind layout.Kind, isRoot bool) (uint64, *CachedPage, error) {
	num := p.numPages
	p.numPages++

	built := page.NewBuilder().Kind(kind).IsRoot(isRoot).Build()
	cp := &CachedPage{Num: num, Bytes: built, Dirty: true}
	p.cache[num] = cp
	return num, cp, nil
}

// NewRoot performs root promotion: the current root's bytes (kind
// preserved, is-root cleared) are copied into a newly allocated page,
// and page 0 is overwritten in place with a fresh internal root. It
// returns the new page number holding the old root's content so the
// caller can install it as a child of the new root.
//
// This is the one operation in this package that touches two cache
// entries at once; both updates are applied in memory before this
// call returns, so callers never observe a half-promoted root.
func (p *Pager) NewRoot() (uint64, *CachedPage, error) {
	root, err := p.RootPage()
	if err != nil {
		return 0, nil, err
	}

	rootBytes := root.Snapshot()
	kind, err := page.Load(&rootBytes)
	if err != nil {
		return 0, nil, errors.Wrap(err, "new root: validate current root")
	}

	builder, err := page.NewBuilder().Content(rootBytes)
	if err != nil {
		return 0, nil, errors.Wrap(err, "new root: preload old root bytes")
	}
	oldRootCopy := builder.IsRoot(false).Kind(kind).Build()

	copyNum := p.numPages
	p.numPages++
	copyPage := &CachedPage{Num: copyNum, Bytes: oldRootCopy, Dirty: true}
	p.cache[copyNum] = copyPage

	newRootBytes := page.NewBuilder().Kind(layout.KindInternal).IsRoot(true).Build()
	root.With(func(b *page.Bytes) { *b = newRootBytes })

	return copyNum, copyPage, nil
}

// GetPage returns the cached page for num, reading it from disk and
// caching it on first access. It returns (nil, nil) if num is beyond
// the allocated range and not already cached.
func (p *Pager) GetPage(num uint64) (*CachedPage, error) {
	if cp, ok := p.cache[num]; ok {
		return cp, nil
	}
	if num >= p.numPages {
		return nil, nil
	}

	var buf page.Bytes
	off := int64(num) * layout.PageSize
	if _, err := p.file.ReadAt(buf[:], off); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "read page %d", num)
	}

	cp := &CachedPage{Num: num, Bytes: buf}
	p.cache[num] = cp
	return cp, nil
}

// Flush writes every cached page back to its offset in the file.
// Writes are buffered by the OS; no fsync is issued (spec O5 — this
// engine does not guarantee durability across abrupt termination).
func (p *Pager) Flush() error {
	for num, cp := range p.cache {
		off := int64(num) * layout.PageSize
		bytes := cp.Snapshot()
		if _, err := p.file.WriteAt(bytes[:], off); err != nil {
			return errors.Wrapf(err, "flush page %d", num)
		}
		cp.mu.Lock()
		cp.Dirty = false
		cp.mu.Unlock()
	}
	return nil
}

// Close flushes and closes the backing file.
func (p *Pager) Close() error {
	if err := p.Flush(); err != nil {
		return err
	}
	return p.file.Close()
}
