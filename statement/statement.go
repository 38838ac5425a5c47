// Package statement parses and executes the two operations the REPL
// understands: insert and select. Everything here is string-in,
// string-out — the REPL owns prompting and reading lines.
package statement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"bptreedb/cursor"
	"bptreedb/node"
	"bptreedb/table"
)

// Kind identifies which operation a parsed statement performs.
type Kind int

const (
	Insert Kind = iota
	Select
)

// Statement is a parsed, not-yet-executed command.
type Statement struct {
	Kind  Kind
	Key   uint64
	Value []byte
}

// Parse turns a line of input into a Statement. Recognized forms are
// "insert <id> <text...>" and "select"; anything else is a syntax
// error.
func Parse(line string) (Statement, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Statement{}, errors.New("empty statement")
	}

	switch strings.ToLower(fields[0]) {
	case "insert":
		if len(fields) < 3 {
			return Statement{}, errors.New("syntax error: usage is insert <id> <text>")
		}
		key, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Statement{}, errors.Wrapf(err, "invalid id %q", fields[1])
		}
		value := strings.Join(fields[2:], " ")
		return Statement{Kind: Insert, Key: key, Value: []byte(value)}, nil
	case "select":
		return Statement{Kind: Select}, nil
	default:
		return Statement{}, errors.Errorf("unrecognized statement: %q", fields[0])
	}
}

// Execute runs the statement against t and returns its output as a
// slice of lines, ready to print. Errors are never returned here;
// per spec §7 they are rendered as "error: <message>" lines instead,
// so the REPL's read-eval-print loop never has to branch on them. A
// successful insert prints nothing; a select prints each record's
// bare value, one per line, in ascending key order.
func Execute(t *table.Table, s Statement) []string {
	c := cursor.New(t)

	switch s.Kind {
	case Insert:
		if err := c.Insert(s.Key, s.Value); err != nil {
			return []string{formatError(err)}
		}
		return nil
	case Select:
		records, err := c.Select()
		if err != nil {
			return []string{formatError(err)}
		}
		lines := make([]string, 0, len(records))
		for _, r := range records {
			lines = append(lines, string(r.Value))
		}
		return lines
	default:
		return []string{formatError(errors.New("unknown statement kind"))}
	}
}

func formatError(err error) string {
	switch errors.Cause(err) {
	case node.ErrDuplicateKey:
		return fmt.Sprintf("error: %s", "duplicate key")
	case node.ErrKeyDoesNotExist:
		return fmt.Sprintf("error: %s", "key does not exist")
	case node.ErrValueTooLarge:
		return fmt.Sprintf("error: %s", "value too large for a page")
	default:
		return fmt.Sprintf("error: %s", err)
	}
}
