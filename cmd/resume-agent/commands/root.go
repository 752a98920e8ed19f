// Package commands defines all Cobra CLI commands for the resume-agent binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/audit"
	"github.com/Jiangye-Song/resume-agent/internal/config"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resume-agent",
		Short: "Answer questions about a resume from a structured record store",
		Long: `resume-agent answers natural-language questions about one person's
projects, education, work experience and facts.

Questions go through a tool-calling agent by default: the model picks
structured queries (date ranges, tag filters, statistics, record lookups,
semantic search) and answers from their results. A direct RAG path ranks
vector search hits by priority and makes a single completion call.

The model provider is selected via MODEL_PROVIDER or a YAML config file
(~/.resume-agent/config.yaml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.resume-agent/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewReindexCmd(),
		NewMCPCmd(),
		NewPasscodeCmd(),
		NewPromptCmd(),
		NewVersionCmd(),
	)

	return root
}
