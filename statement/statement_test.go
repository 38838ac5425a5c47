package statement

import (
	"path/filepath"
	"strings"
	"testing"

	"bptreedb/table"
)

func openTemp(t *testing.T) *table.Table {
	t.Helper()
	tb, err := table.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("table.Open: %v", err)
	}
	t.Cleanup(func() { _ = tb.Close() })
	return tb
}

func TestParseInsert(t *testing.T) {
	s, err := Parse("insert 7 hello world")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Kind != Insert || s.Key != 7 || string(s.Value) != "hello world" {
		t.Fatalf("Parse result = %+v", s)
	}
}

func TestParseSelect(t *testing.T) {
	s, err := Parse("select")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Kind != Select {
		t.Fatalf("Kind = %v, want Select", s.Kind)
	}
}

func TestParseInsertBadKey(t *testing.T) {
	if _, err := Parse("insert abc text"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestParseInsertMissingArgs(t *testing.T) {
	if _, err := Parse("insert 1"); err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestParseUnrecognized(t *testing.T) {
	if _, err := Parse("delete 1"); err == nil {
		t.Fatal("expected error for unrecognized statement")
	}
}

func TestExecuteInsertThenSelect(t *testing.T) {
	tb := openTemp(t)

	s, err := Parse("insert 1 hello")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	lines := Execute(tb, s)
	if len(lines) != 0 {
		t.Fatalf("insert output = %v, want no lines", lines)
	}

	s, err = Parse("select")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	lines = Execute(tb, s)
	if len(lines) != 1 {
		t.Fatalf("select output = %v, want 1 line", lines)
	}
	if lines[0] != "hello" {
		t.Errorf("select output = %q, want bare value %q", lines[0], "hello")
	}
}

func TestExecuteDuplicateInsertReportsError(t *testing.T) {
	tb := openTemp(t)
	s, _ := Parse("insert 1 a")
	Execute(tb, s)

	lines := Execute(tb, s)
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "error:") {
		t.Fatalf("output = %v, want a single error line", lines)
	}
}
