// Command pharmref administers the reference store and runs analyses from
// the shell.
package main

import (
	"fmt"
	"os"

	"github.com/pharmref-mcp-server/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
