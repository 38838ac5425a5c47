package repl

import (
	"bytes"
	"io"
	"log"
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

func TestRunExecutesStatementsUntilExit(t *testing.T) {
	tb := openTemp(t)
	in := strings.NewReader("insert 1 hello\nselect\n.exit\n")
	var out bytes.Buffer
	logger := log.New(io.Discard, "", 0)

	r := New(tb, "test", in, &out, logger)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "hello") {
		t.Errorf("expected select output to contain inserted value, got %q", output)
	}
}

func TestRunHandlesSyntaxError(t *testing.T) {
	tb := openTemp(t)
	in := strings.NewReader("bogus statement\n.exit\n")
	var out bytes.Buffer
	logger := log.New(io.Discard, "", 0)

	r := New(tb, "", in, &out, logger)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "error:") {
		t.Errorf("expected error line, got %q", out.String())
	}
}

func TestRunLayoutMetaCommand(t *testing.T) {
	tb := openTemp(t)
	in := strings.NewReader(".layout\n.exit\n")
	var out bytes.Buffer
	logger := log.New(io.Discard, "", 0)

	r := New(tb, "", in, &out, logger)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "page_size") {
		t.Errorf("expected YAML layout dump, got %q", out.String())
	}
}

func TestRunStopsOnEOF(t *testing.T) {
	tb := openTemp(t)
	in := strings.NewReader("insert 1 hello\n")
	var out bytes.Buffer
	logger := log.New(io.Discard, "", 0)

	r := New(tb, "", in, &out, logger)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
