// Package server implements the HTTP API in front of the resume agent: the
// public chat endpoint, the passcode-protected admin API, health probes and
// Prometheus metrics. It is started by the `resume-agent serve` command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// New constructs a Server from the provided dependencies and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Agent == nil && deps.RAG == nil {
		return nil, fmt.Errorf("server: at least one of Agent or RAG must be set")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("server: Store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast the slowest chat request.
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.routes(rl)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the mux. Chat and admin routes are rate limited; admin
// routes also require the panel passcode.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, h))
	}
	limited := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, s.rateLimit(rl, name, h)))
	}
	admin := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(name, s.rateLimit(rl, name, s.adminAuth(h))))
	}

	limited("POST /api/chat", "chat", s.handleChat)
	handle("GET /api/health", "health", s.handleHealth)
	handle("GET /api/ready", "ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	admin("POST /api/admin", "admin_verify", s.handleAdminVerify)
	admin("GET /api/admin/records", "admin_records_list", s.handleListRecords)
	admin("POST /api/admin/records", "admin_records_create", s.handleCreateRecord)
	admin("GET /api/admin/records/{id}", "admin_records_get", s.handleGetRecord)
	admin("PUT /api/admin/records/{id}", "admin_records_update", s.handleUpdateRecord)
	admin("DELETE /api/admin/records/{id}", "admin_records_delete", s.handleDeleteRecord)
	admin("POST /api/admin/reindex", "admin_reindex", s.handleReindex)
	admin("POST /api/admin/generate-facts", "admin_generate_facts", s.handleGenerateFacts)
	admin("GET /api/admin/system-prompt", "admin_prompt_get", s.handleGetSystemPrompt)
	admin("PUT /api/admin/system-prompt", "admin_prompt_put", s.handlePutSystemPrompt)

	return mux
}

// Handler returns the fully wrapped HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	defer s.stopRL()

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody decodes a size-limited JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}

// writeError replies with {"error": msg}.
func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, errorResponse{Error: msg})
}
