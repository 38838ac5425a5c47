package cell

import (
	"bytes"
	"testing"
)

func TestInternalCellRoundTrip(t *testing.T) {
	c := NewInternalCell(42, 7)
	raw := c.GetKeyBytes()

	got, err := InternalCellFromBytes(raw[:])
	if err != nil {
		t.Fatalf("InternalCellFromBytes: %v", err)
	}
	if got != c {
		t.Fatalf("round trip = %+v, want %+v", got, c)
	}
}

func TestInternalCellFromBytesTruncated(t *testing.T) {
	if _, err := InternalCellFromBytes(make([]byte, 4)); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestLeafCellKeyPrefixRoundTrip(t *testing.T) {
	c := NewLeafCell(99, []byte("hello"), true)
	prefix := c.EncodeKeyPrefix()

	overflow, key, err := DecodeKeyPrefix(prefix[:])
	if err != nil {
		t.Fatalf("DecodeKeyPrefix: %v", err)
	}
	if !overflow {
		t.Error("overflow flag not preserved")
	}
	if key != 99 {
		t.Errorf("key = %d, want 99", key)
	}
}

func TestLeafCellValueBlobRoundTrip(t *testing.T) {
	c := NewLeafCell(1, []byte("some value bytes"), false)
	blob := c.EncodeValueBlob()

	content, err := DecodeValueBlob(blob)
	if err != nil {
		t.Fatalf("DecodeValueBlob: %v", err)
	}
	if !bytes.Equal(content, c.Content) {
		t.Errorf("content = %q, want %q", content, c.Content)
	}
}

func TestLeafCellEmptyValue(t *testing.T) {
	c := NewLeafCell(5, nil, false)
	blob := c.EncodeValueBlob()
	content, err := DecodeValueBlob(blob)
	if err != nil {
		t.Fatalf("DecodeValueBlob: %v", err)
	}
	if len(content) != 0 {
		t.Errorf("content = %q, want empty", content)
	}
}

func TestDecodeValueBlobTruncated(t *testing.T) {
	if _, err := DecodeValueBlob(make([]byte, 2)); err == nil {
		t.Fatal("expected error for truncated length prefix")
	}

	// length prefix claims 10 bytes of content but none follow
	raw := make([]byte, 8)
	raw[7] = 10
	if _, err := DecodeValueBlob(raw); err == nil {
		t.Fatal("expected error when content is shorter than the declared length")
	}
}

func TestDefaultCells(t *testing.T) {
	if DefaultInternalCell().Key != SentinelKey {
		t.Error("DefaultInternalCell should carry the sentinel key")
	}
	if DefaultLeafCell().Key != SentinelKey {
		t.Error("DefaultLeafCell should carry the sentinel key")
	}
}
