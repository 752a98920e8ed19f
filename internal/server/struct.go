package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jiangye-Song/resume-agent/internal/agent"
	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/ingestion"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one /api/chat request (default: 2m).
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker runs the agent orchestrator. *agent.Agent satisfies it.
type Asker interface {
	Run(ctx context.Context, question string) agent.Outcome
}

// Answerer runs the direct RAG path. *rag.Answerer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, []rag.Ranked)
}

// Indexer keeps the vector index in step with the record store.
// *ingestion.Reindexer satisfies it.
type Indexer interface {
	Run(ctx context.Context, progress func(string)) (*ingestion.Stats, error)
	Put(ctx context.Context, rec *records.Record) error
	Remove(ctx context.Context, rec *records.Record) error
}

// PromptCache serves the direct RAG system prompt. *prompt.Cache satisfies it.
type PromptCache interface {
	Get(ctx context.Context) (string, error)
	Invalidate()
}

// Deps are the components the handlers call.
type Deps struct {
	// Agent answers chat questions in agent mode.
	Agent Asker
	// RAG answers chat questions in direct mode.
	RAG Answerer
	// Store is the record store behind the admin API.
	Store store.RecordStore
	// Indexer mirrors admin writes into the vector index.
	Indexer Indexer
	// Prompt is invalidated when the system prompt is updated.
	Prompt PromptCache
	// Completer generates facts from summaries.
	Completer completion.Completer
}

// Server is the HTTP server in front of the agent and the admin API.
type Server struct {
	// deps are the handler dependencies.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// UseAgent selects agent mode (default) or the direct RAG path.
	UseAgent *bool `json:"use_agent,omitempty"`
}

// chatResponse is the JSON body returned by POST /api/chat.
type chatResponse struct {
	// Answer is the text shown to the user.
	Answer string `json:"answer"`
	// Mode is "agent" or "rag".
	Mode string `json:"mode"`
	// ToolsUsed lists tools the agent executed, in order.
	ToolsUsed []string `json:"tools_used"`
}

// errorResponse is the JSON body of every 4xx/5xx reply.
type errorResponse struct {
	// Error is the human-readable reason.
	Error string `json:"error"`
}

// recordInput is the admin create/update body. Facts may be a list or
// newline-separated text; link fields accept every shape records.ParseLinks does.
type recordInput struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Title         string          `json:"title"`
	Summary       string          `json:"summary"`
	Tags          []string        `json:"tags"`
	Facts         json.RawMessage `json:"facts"`
	DetailSite    json.RawMessage `json:"detail_site"`
	AdditionalURL json.RawMessage `json:"additional_url"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Priority      *int            `json:"priority"`
}

// generateFactsRequest is the JSON body for POST /api/admin/generate-facts.
type generateFactsRequest struct {
	// Summary is the text to distil.
	Summary string `json:"summary"`
}

// systemPromptRequest is the JSON body for PUT /api/admin/system-prompt.
type systemPromptRequest struct {
	// Prompt is the new direct RAG system prompt.
	Prompt string `json:"prompt"`
}
