package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/provider"
)

// probeTimeout bounds each dependency probe in /api/ready.
const probeTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability. The record
// store, the vector index and ModelPinger implement it. Implementations must
// be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses.
	Name() string
}

// readyCheck is one probe result.
type readyCheck struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the probe succeeded.
	OK bool `json:"ok"`
	// LatencyMS is how long the probe took.
	LatencyMS int64 `json:"latency_ms"`
	// Error is the failure reason when OK is false.
	Error string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	// Ready is true only when every probe succeeded.
	Ready bool `json:"ready"`
	// Checks holds one entry per Pinger, in configuration order.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Probes run concurrently; the reply is
// 503 when any of them fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := readyResponse{Ready: true, Checks: probe(ctx, s.pingers)}

	for _, c := range resp.Checks {
		if !c.OK {
			resp.Ready = false
			logging.FromContext(ctx).Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(ctx, w, status, resp)
}

// probe pings every dependency with its own timeout.
func probe(ctx context.Context, pingers []Pinger) []readyCheck {
	checks := make([]readyCheck, len(pingers))
	var g errgroup.Group
	for i, p := range pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(pctx)
			checks[i] = readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				checks[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

// ModelPinger probes the chat model backend through its listing endpoint, so
// readiness checks never spend tokens.
type ModelPinger struct {
	// cfg is the resolved provider configuration.
	cfg *provider.Config
}

// NewModelPinger constructs a ModelPinger for the given provider config.
func NewModelPinger(cfg *provider.Config) *ModelPinger {
	return &ModelPinger{cfg: cfg}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return "model:" + string(p.cfg.Backend) }

// Ping runs the provider health check.
func (p *ModelPinger) Ping(ctx context.Context) error {
	if err := p.cfg.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.cfg.Backend, err)
	}
	return nil
}
