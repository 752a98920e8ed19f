package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Jiangye-Song/resume-agent/internal/ingestion"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

// NewReindexCmd constructs the `resume-agent reindex` command, which
// rebuilds the vector index from the record store.
func NewReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the record store",
		Long: `Embed every record and upsert it into the vector backend.

Each record is stored under a deterministic id (<type>:<id>), so running
reindex repeatedly never creates duplicates. Per-record failures are
reported and do not stop the run.

Environment:
  VECTOR_BACKEND       chromem (default), qdrant or pgvector
  VECTOR_COLLECTION    collection or table name
  EMBEDDING_PROVIDER   ollama, openai or azure
  DATABASE_URL         record store location`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			s, err := openStore(ctx, log)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer func() { _ = s.Close() }()

			idx, err := openIndex(ctx, s, log)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer func() { _ = idx.Close() }()

			r, err := ingestion.NewReindexer(s, idx)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			stats, err := r.Run(ctx, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			for _, e := range stats.Errors {
				log.Warn("record not indexed", slog.String("id", e.ID), slog.String("error", e.Error))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "total: %d  upserted: %d  errors: %d\n",
				stats.Total, stats.Upserted, len(stats.Errors))
			return nil
		},
	}
}
