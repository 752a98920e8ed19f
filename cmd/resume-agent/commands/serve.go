package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/server"
	"github.com/Jiangye-Song/resume-agent/internal/tracing"
)

// NewServeCmd constructs the `resume-agent serve` command, which starts the
// HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the resume-agent HTTP server.

Public routes:
  POST /api/chat        {"question": "...", "use_agent": true}
  GET  /api/health      liveness
  GET  /api/ready       record store, vector index and model checks
  GET  /metrics         Prometheus metrics

Admin routes under /api/admin require "Authorization: Bearer <passcode>";
set the passcode with 'resume-agent passcode set'.

Examples:
  resume-agent serve
  resume-agent serve --port 9090
  MODEL_PROVIDER=openai VECTOR_BACKEND=qdrant resume-agent serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush := tracing.Install(log)
			defer flush()

			a, err := openApp(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.close()

			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("RESUMEAGENT_HOST"); v != "" {
					host = v
				}
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("RESUMEAGENT_PORT", port)
			}

			srv, err := server.New(server.Deps{
				Agent:     a.agent,
				RAG:       a.rag,
				Store:     a.store,
				Indexer:   a.reindexer,
				Prompt:    a.prompt,
				Completer: a.completer,
			}, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   a.pingers(),
				RateLimit: getEnvFloat("RESUMEAGENT_RATE_LIMIT", 0),
				RateBurst: getEnvInt("RESUMEAGENT_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
