// Command odavl is the CLI entrypoint: delta-first static analysis plus the
// Autopilot self-healing loop. Argument parsing and command routing
// live in internal/cli; main only wires the process exit code.
package main

import (
	"os"

	"github.com/odavl/autopilot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
