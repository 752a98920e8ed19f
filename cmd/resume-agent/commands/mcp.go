package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/mcpserver"
	"github.com/Jiangye-Song/resume-agent/internal/tools"
)

// NewMCPCmd constructs the `resume-agent mcp` command, which serves the
// resume tools over the Model Context Protocol on stdio.
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the resume tools over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the five
resume tools: rag_search_by_domain, get_records_by_date, filter_records,
get_record_details and get_statistics.

Logs go to stderr; stdout carries protocol frames only. No chat model is
needed: the client's own model calls the tools.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.NewWithWriter(os.Stderr)
			ctx = logging.WithLogger(ctx, log)

			s, err := openStore(ctx, log)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer func() { _ = s.Close() }()

			idx, err := openIndex(ctx, s, log)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer func() { _ = idx.Close() }()

			reg, err := tools.Default(s, idx)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}

			srv, err := mcpserver.New(ctx, reg, mcpserver.Config{Logger: log})
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
