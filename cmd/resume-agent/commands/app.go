package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Jiangye-Song/resume-agent/internal/agent"
	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/embedder"
	"github.com/Jiangye-Song/resume-agent/internal/ingestion"
	"github.com/Jiangye-Song/resume-agent/internal/prompt"
	"github.com/Jiangye-Song/resume-agent/internal/provider"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/server"
	"github.com/Jiangye-Song/resume-agent/internal/store"
	"github.com/Jiangye-Song/resume-agent/internal/tools"
)

// defaultAgentTimeout bounds one agent run when AGENT_TIMEOUT is unset.
const defaultAgentTimeout = 60 * time.Second

// app holds every component a command may need. Fields are built in
// dependency order by openApp; close releases them in reverse.
type app struct {
	store     *store.SQLStore
	index     *rag.EmbeddingIndex
	provider  *provider.Config
	completer *completion.Client
	prompt    *prompt.Cache
	tools     *tools.Registry
	agent     *agent.Agent
	rag       *rag.Answerer
	reindexer *ingestion.Reindexer
}

// openStore opens the record store described by DATABASE_*.
func openStore(ctx context.Context, log *slog.Logger) (*store.SQLStore, error) {
	cfg, err := store.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("record store opened", slog.String("driver", cfg.Driver))
	return s, nil
}

// openIndex builds the embedder and vector backend. pgvector shares the
// record store's Postgres pool.
func openIndex(ctx context.Context, s *store.SQLStore, log *slog.Logger) (*rag.EmbeddingIndex, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	cfg := rag.StoreConfigFromEnv()
	cfg.Dimensions = embedder.DefaultDimensions(embedder.Backend())
	if cfg.Backend == rag.BackendPGVector {
		cfg.DB = s.DB()
	}
	vs, err := rag.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	idx, err := rag.NewEmbeddingIndex(emb, vs, 0)
	if err != nil {
		_ = vs.Close()
		return nil, err
	}
	log.Info("vector index ready",
		slog.String("backend", cfg.Backend),
		slog.String("embedder", embedder.Backend()),
		slog.Int("dimensions", cfg.Dimensions),
	)
	return idx, nil
}

// openApp wires the full stack: store, vector index, model, tools, agent,
// direct RAG answerer and re-indexer.
func openApp(ctx context.Context, log *slog.Logger) (*app, error) {
	a := &app{}
	var err error

	if a.store, err = openStore(ctx, log); err != nil {
		return nil, err
	}
	if a.index, err = openIndex(ctx, a.store, log); err != nil {
		a.close()
		return nil, err
	}

	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("model provider: %w", err)
	}
	a.provider = providerCfg
	a.completer = completion.New(chatModel, completion.Options{Logger: log})
	log.Info("model provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	a.prompt = prompt.NewCache(prompt.StoreLoader(a.store), getEnvDuration("PROMPT_CACHE_TTL", prompt.DefaultTTL))
	a.rag = rag.NewAnswerer(a.index, a.completer, a.prompt)

	if a.tools, err = tools.Default(a.store, a.index); err != nil {
		a.close()
		return nil, err
	}

	agentCfg := agent.Config{
		Completer:     a.completer,
		Tools:         a.tools,
		MaxIterations: getEnvInt("AGENT_MAX_ITERATIONS", agent.DefaultMaxIterations),
		Timeout:       getEnvDuration("AGENT_TIMEOUT", defaultAgentTimeout),
		MaxTokens:     getEnvInt("MODEL_MAX_TOKENS", agent.DefaultMaxTokens),
	}
	if v, ok := getEnvFloat32("MODEL_TEMPERATURE"); ok {
		agentCfg.Temperature = &v
	}
	if a.agent, err = agent.New(ctx, agentCfg); err != nil {
		a.close()
		return nil, err
	}

	if a.reindexer, err = ingestion.NewReindexer(a.store, a.index); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// pingers lists the readiness probes for /api/ready.
func (a *app) pingers() []server.Pinger {
	return []server.Pinger{a.store, a.index, server.NewModelPinger(a.provider)}
}

func (a *app) close() {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Default().Warn("close failed", slog.Any("error", err))
	}
}

// getEnvInt reads an integer env var, returning def when unset or invalid.
func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

// getEnvDuration reads a time.ParseDuration env var, returning def when
// unset or invalid.
func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

func getEnvFloat32(key string) (float32, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

func getEnvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}
