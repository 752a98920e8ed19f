// Command resume-agent answers questions about a resume: a CLI, an HTTP API
// with an admin panel backend, and an MCP server over the same record store.
package main

import (
	"fmt"
	"os"

	"github.com/Jiangye-Song/resume-agent/cmd/resume-agent/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
