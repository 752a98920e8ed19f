package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/tracing"
)

// NewAskCmd constructs the `resume-agent ask` command, which answers one
// question and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var direct bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the resume",
		Long: `Answer one question using the tool-calling agent, or the direct RAG
path with --rag.

Examples:
  resume-agent ask "What is the most recent project?"
  resume-agent ask "Which projects use Python?"
  resume-agent ask --rag "Tell me about the machine learning work"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Install(log)
			defer flush()

			a, err := openApp(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.close()

			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if direct {
				answer, ranked := a.rag.Answer(ctx, question)
				if asJSON {
					return json.NewEncoder(out).Encode(map[string]any{"answer": answer, "mode": "rag", "sources": len(ranked)})
				}
				_, err = fmt.Fprintln(out, answer)
				return err
			}

			res := a.agent.Run(ctx, question)
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			if _, err := fmt.Fprintln(out, res.Answer); err != nil {
				return err
			}
			if len(res.ToolsUsed) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\ntools: %s (%d iterations, %s)\n",
					strings.Join(res.ToolsUsed, ", "), res.Iterations, res.Stop)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&direct, "rag", false, "Use the direct RAG path instead of the agent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}
