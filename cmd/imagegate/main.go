// Package main is the entry point for the imagegate CLI.
//
// Usage:
//
//	imagegate [flags] <command> [args]
//
// Commands:
//
//	serve     - Run the HTTP API
//	generate  - Generate one image through the shared queue
//	queue     - Show or reset the admission state
//	watch     - Live view of the admission state
package main

import (
	"fmt"
	"os"

	"github.com/ineyio/imagegate/cmd/imagegate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
