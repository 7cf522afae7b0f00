// jsonschemals is a Language Server for JSON (and JSON-with-comments)
// documents: it discovers the schema a document declares via its
// top-level "$schema" member, and drives validation, hover, and
// completion from it over LSP/stdio.
//
// See internal/cmd for the command line, and internal/server for the
// protocol method dispatch.
package main

import (
	"fmt"
	"os"

	"github.com/jsonschemals/jsonschemals/internal/cmd"
)

func main() {
	if err := cmd.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
