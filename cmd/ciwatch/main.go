// Command ciwatch collects CI runs and raises regression alerts from the
// command line. The long-running service lives in ciwatch-server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
