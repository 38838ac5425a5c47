// Package page builds and validates the fixed-size byte blocks that
// make up the on-disk file. It knows nothing about cells, the pager,
// or the tree — only how to stamp a page's header.
package page

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"bptreedb/layout"
)

// Bytes is the raw, fixed-size on-disk representation of a page.
type Bytes = [layout.PageSize]byte

// ErrInvalidPage reports a page whose bytes failed validation.
var ErrInvalidPage = errors.New("invalid page")

// Kind returns the page kind tag stored at KindOffset.
func Kind(b *Bytes) layout.Kind {
	return layout.Kind(b[layout.KindOffset])
}

// IsRoot reports the is-root flag. Per O1, true is encoded as 1 and
// false as 0 — the reverse of one branch of the original's
// bool_to_u8, which this implementation does not repeat.
func IsRoot(b *Bytes) bool {
	return b[layout.IsRootOffset] == 1
}

// SetIsRoot writes the is-root flag using the true->1, false->0
// convention.
func SetIsRoot(b *Bytes, isRoot bool) {
	if isRoot {
		b[layout.IsRootOffset] = 1
	} else {
		b[layout.IsRootOffset] = 0
	}
}

// Load validates that b starts with the expected magic and that its
// kind byte decodes to a known Kind. It does not copy b.
func Load(b *Bytes) (layout.Kind, error) {
	magic := binary.BigEndian.Uint64(b[layout.MagicOffset : layout.MagicOffset+8])
	if magic != layout.Magic {
		return 0, errors.Wrapf(ErrInvalidPage, "bad magic %#x", magic)
	}
	k := Kind(b)
	switch k {
	case layout.KindLeaf, layout.KindInternal:
		return k, nil
	default:
		return 0, errors.Wrapf(ErrInvalidPage, "unknown kind byte %#x", byte(k))
	}
}

// Builder produces correctly initialized page bytes for a chosen kind.
//
// Mirrors the original's PageBuilder: kind/is_root/content are set
// independently and Build stamps the magic plus, for a freshly
// allocated leaf, the default header values.
type Builder struct {
	inner       Bytes
	kind        layout.Kind
	contentSet  bool
}

// NewBuilder starts a builder with every byte zeroed.
func NewBuilder() *Builder {
	return &Builder{kind: layout.KindLeaf}
}

// Content preloads the builder with existing page bytes, validating
// the magic the same way Load does. Used by the pager during root
// promotion to copy an existing page's body into a new one.
func (b *Builder) Content(c Bytes) (*Builder, error) {
	if _, err := Load(&c); err != nil {
		return nil, err
	}
	b.inner = c
	b.contentSet = true
	return b, nil
}

// Kind sets the page kind tag.
func (b *Builder) Kind(k layout.Kind) *Builder {
	b.inner[layout.KindOffset] = byte(k)
	b.kind = k
	return b
}

// IsRoot sets the is-root flag.
func (b *Builder) IsRoot(isRoot bool) *Builder {
	SetIsRoot(&b.inner, isRoot)
	return b
}

// Build finalizes the page: writes the magic, and — for a leaf page
// being built without preloaded content — the default leaf header
// (free-space pointers and sentinel next-sibling/overflow pointers).
func (b *Builder) Build() Bytes {
	binary.BigEndian.PutUint64(b.inner[layout.MagicOffset:layout.MagicOffset+8], layout.Magic)

	if b.kind == layout.KindLeaf && !b.contentSet {
		binary.BigEndian.PutUint64(
			b.inner[layout.LeafFreeSpaceStartOffset:layout.LeafFreeSpaceStartOffset+8],
			uint64(layout.LeafHeaderSize),
		)
		binary.BigEndian.PutUint64(
			b.inner[layout.LeafFreeSpaceEndOffset:layout.LeafFreeSpaceEndOffset+8],
			uint64(layout.PageSize),
		)
		binary.BigEndian.PutUint64(
			b.inner[layout.LeafNextSiblingOffset:layout.LeafNextSiblingOffset+8],
			layout.SentinelPointer,
		)
		binary.BigEndian.PutUint64(
			b.inner[layout.LeafOverflowPtrOffset:layout.LeafOverflowPtrOffset+8],
			layout.SentinelPointer,
		)
	}

	if b.kind == layout.KindInternal && !b.contentSet {
		binary.BigEndian.PutUint64(
			b.inner[layout.InternalRightChildOffset:layout.InternalRightChildOffset+8],
			layout.SentinelPointer,
		)
	}

	return b.inner
}
