package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/version"
)

// NewVersionCmd constructs the `resume-agent version` subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resume-agent %s\n", version.String())
		},
	}
}
