// Command entity-proxy serves catalog entities of a paginated vendor API over
// HTTP and fetches them from the command line.
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
