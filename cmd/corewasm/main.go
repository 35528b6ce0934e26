// Command corewasm decodes, validates, links, and runs WebAssembly 1.0
// binary modules from the command line. It is a thin dispatcher over the
// corewasm package — no behavior lives here that Runtime doesn't already
// provide.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
