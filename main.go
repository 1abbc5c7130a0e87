// ABOUTME: Main entry point for the funnel CLI
// ABOUTME: Delegates to the cli package for routing
package main

import (
	"os"

	"github.com/harperreed/funnel/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
