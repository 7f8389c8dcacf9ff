// Command badger is the CLI for the Badger optimizer.
package main

import (
	"os"

	"github.com/badger-opt/badger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
