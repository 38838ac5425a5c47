// Command bptreedb is the interactive front end for the storage
// engine: open a database file, drop into a REPL.
package main

import (
	"flag"
	"log"
	"os"

	"bptreedb/repl"
	"bptreedb/table"
)

func main() {
	file := flag.String("file", "/tmp/default.db", "path to the database file")
	flag.Parse()

	name := ""
	if flag.NArg() > 0 {
		name = flag.Arg(0)
	}

	logger := log.New(os.Stderr, "bptreedb: ", log.LstdFlags)

	t, err := table.Open(*file)
	if err != nil {
		logger.Fatalf("open %q: %s", *file, err)
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Printf("close: %s", err)
		}
	}()

	r := repl.New(t, name, os.Stdin, os.Stdout, logger)
	if err := r.Run(); err != nil {
		logger.Fatalf("repl: %s", err)
	}
}
