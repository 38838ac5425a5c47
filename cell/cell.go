// Package cell encodes and decodes the two cell shapes that live in a
// page body: the internal cell (separator key + child pointer) and
// the leaf cell (overflow flag + key + value).
package cell

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"bptreedb/layout"
)

// SentinelKey is the default key carried by a zero-value cell.
const SentinelKey = layout.SentinelPointer

// InternalCell is a separator key paired with the page number of the
// child it routes to.
type InternalCell struct {
	Key     uint64
	Pointer uint64
}

// NewInternalCell builds an internal cell.
func NewInternalCell(key, pointer uint64) InternalCell {
	return InternalCell{Key: key, Pointer: pointer}
}

// DefaultInternalCell returns a cell carrying the sentinel key, as a
// freshly zeroed slot would decode to.
func DefaultInternalCell() InternalCell {
	return InternalCell{Key: SentinelKey, Pointer: SentinelKey}
}

// GetKey returns the cell's routing key.
func (c InternalCell) GetKey() uint64 { return c.Key }

// GetKeyBytes returns the 16-byte on-disk representation: key then
// pointer, both big-endian.
func (c InternalCell) GetKeyBytes() [layout.InternalCellSize]byte {
	var out [layout.InternalCellSize]byte
	binary.BigEndian.PutUint64(out[layout.InternalCellKeyOffset:layout.InternalCellKeyOffset+8], c.Key)
	binary.BigEndian.PutUint64(out[layout.InternalCellPtrOffset:layout.InternalCellPtrOffset+8], c.Pointer)
	return out
}

// InternalCellFromBytes reconstructs an internal cell from a 16-byte
// slot.
func InternalCellFromBytes(raw []byte) (InternalCell, error) {
	if len(raw) < layout.InternalCellSize {
		return InternalCell{}, errors.Errorf("internal cell: need %d bytes, got %d", layout.InternalCellSize, len(raw))
	}
	return InternalCell{
		Key:     binary.BigEndian.Uint64(raw[layout.InternalCellKeyOffset : layout.InternalCellKeyOffset+8]),
		Pointer: binary.BigEndian.Uint64(raw[layout.InternalCellPtrOffset : layout.InternalCellPtrOffset+8]),
	}, nil
}

// LeafCell is a record: an identifier key plus its content. The
// key-slot's value-pointer field is not part of the cell itself — it
// is assigned by the node when the cell's content is written into the
// page's value heap, since only the node knows where that heap
// currently ends.
type LeafCell struct {
	Overflow bool
	Key      uint64
	Content  []byte
}

// NewLeafCell builds a leaf cell.
func NewLeafCell(key uint64, content []byte, overflow bool) LeafCell {
	return LeafCell{Overflow: overflow, Key: key, Content: content}
}

// DefaultLeafCell returns a cell carrying the sentinel key and no
// content, as a freshly zeroed slot would decode to.
func DefaultLeafCell() LeafCell {
	return LeafCell{Overflow: false, Key: SentinelKey, Content: nil}
}

// GetKey returns the cell's identifier.
func (c LeafCell) GetKey() uint64 { return c.Key }

// GetContent returns the cell's stored value.
func (c LeafCell) GetContent() []byte { return c.Content }

// HasOverflow reports whether the cell's value spills into an
// overflow page. Overflow pages are not implemented (spec O4); this
// flag is reserved for a future implementation.
func (c LeafCell) HasOverflow() bool { return c.Overflow }

// KeyPrefixSize is the portion of a leaf key slot cell.go can encode
// on its own: the overflow flag and the key. The remaining bytes of
// the slot (the value pointer) are filled in by the node.
const KeyPrefixSize = layout.LeafSlotPointerOffset

// EncodeKeyPrefix returns [overflow:1][key:8].
func (c LeafCell) EncodeKeyPrefix() [KeyPrefixSize]byte {
	var out [KeyPrefixSize]byte
	if c.Overflow {
		out[layout.LeafSlotOverflowOffset] = 1
	}
	binary.BigEndian.PutUint64(out[layout.LeafSlotKeyOffset:layout.LeafSlotKeyOffset+8], c.Key)
	return out
}

// DecodeKeyPrefix reconstructs the overflow flag and key from the
// first KeyPrefixSize bytes of a key slot.
func DecodeKeyPrefix(raw []byte) (overflow bool, key uint64, err error) {
	if len(raw) < KeyPrefixSize {
		return false, 0, errors.Errorf("leaf cell prefix: need %d bytes, got %d", KeyPrefixSize, len(raw))
	}
	overflow = raw[layout.LeafSlotOverflowOffset] != 0
	key = binary.BigEndian.Uint64(raw[layout.LeafSlotKeyOffset : layout.LeafSlotKeyOffset+8])
	return overflow, key, nil
}

// EncodeValueBlob returns [length:8][content...].
func (c LeafCell) EncodeValueBlob() []byte {
	out := make([]byte, layout.LeafValueLengthSize+len(c.Content))
	binary.BigEndian.PutUint64(out[:layout.LeafValueLengthSize], uint64(len(c.Content)))
	copy(out[layout.LeafValueLengthSize:], c.Content)
	return out
}

// DecodeValueBlob reads the length-prefixed content starting at raw.
func DecodeValueBlob(raw []byte) ([]byte, error) {
	if len(raw) < layout.LeafValueLengthSize {
		return nil, errors.New("leaf value blob: truncated length prefix")
	}
	n := binary.BigEndian.Uint64(raw[:layout.LeafValueLengthSize])
	end := layout.LeafValueLengthSize + n
	if uint64(len(raw)) < end {
		return nil, errors.Errorf("leaf value blob: need %d bytes, got %d", end, len(raw))
	}
	content := make([]byte, n)
	copy(content, raw[layout.LeafValueLengthSize:end])
	return content, nil
}
