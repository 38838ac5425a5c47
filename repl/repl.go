// Package repl is the interactive front end: a flush-then-prompt read
// loop over a table.Table. It understands two meta-commands (.exit,
// .layout) and otherwise hands each line to the statement package.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"bptreedb/layout"
	"bptreedb/statement"
	"bptreedb/table"
)

// REPL ties an input/output stream to an open table.
type REPL struct {
	t         *table.Table
	name      string
	sessionID uuid.UUID
	in        *bufio.Scanner
	out       io.Writer
	logger    *log.Logger
}

// New builds a REPL reading from in and writing prompts/output to
// out. name is shown in the prompt (the CLI's optional positional
// argument); logger receives session lifecycle lines.
func New(t *table.Table, name string, in io.Reader, out io.Writer, logger *log.Logger) *REPL {
	return &REPL{
		t:         t,
		name:      name,
		sessionID: uuid.New(),
		in:        bufio.NewScanner(in),
		out:       out,
		logger:    logger,
	}
}

// Run reads lines until .exit or EOF, flushing the table after every
// executed statement — mirroring the original's flush-then-prompt
// loop (repl/mod.rs).
func (r *REPL) Run() error {
	r.logger.Printf("session %s started", r.sessionID)
	defer r.logger.Printf("session %s ended", r.sessionID)

	for {
		fmt.Fprintf(r.out, "%s> ", r.prompt())
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := r.in.Text()

		switch line {
		case "":
			continue
		case ".exit":
			return nil
		case ".layout":
			r.printLayout()
			continue
		}

		stmt, err := statement.Parse(line)
		if err != nil {
			fmt.Fprintf(r.out, "error: %s\n", err)
			continue
		}

		for _, l := range statement.Execute(r.t, stmt) {
			fmt.Fprintln(r.out, l)
		}
		if err := r.t.Flush(); err != nil {
			r.logger.Printf("flush failed: %s", err)
			return err
		}
	}
}

func (r *REPL) prompt() string {
	if r.name == "" {
		return "db"
	}
	return r.name
}

// layoutDump is the structured form the .layout meta-command renders
// as YAML (spec's supplemented feature: repl/commands.rs, restored
// here using gopkg.in/yaml.v3 rather than ad hoc Println lines).
type layoutDump struct {
	PageSize           int    `yaml:"page_size"`
	Magic              uint64 `yaml:"magic"`
	CommonHeaderSize   int    `yaml:"common_header_size"`
	LeafHeaderSize     int    `yaml:"leaf_header_size"`
	LeafKeyCellSize    int    `yaml:"leaf_key_cell_size"`
	InternalHeaderSize int    `yaml:"internal_header_size"`
	InternalCellSize   int    `yaml:"internal_cell_size"`
	InternalMaxKeys    int    `yaml:"internal_max_keys"`
}

func (r *REPL) printLayout() {
	d := layoutDump{
		PageSize:           layout.PageSize,
		Magic:              layout.Magic,
		CommonHeaderSize:   layout.CommonHeaderSize,
		LeafHeaderSize:     layout.LeafHeaderSize,
		LeafKeyCellSize:    layout.LeafKeyCellSize,
		InternalHeaderSize: layout.InternalHeaderSize,
		InternalCellSize:   layout.InternalCellSize,
		InternalMaxKeys:    layout.InternalMaxKeys,
	}
	out, err := yaml.Marshal(d)
	if err != nil {
		fmt.Fprintf(r.out, "error: %s\n", err)
		return
	}
	r.out.Write(out)
}
