package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Jiangye-Song/resume-agent/internal/agent"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
)

// Chat modes reported in responses and metrics.
const (
	modeAgent = "agent"
	modeRAG   = "rag"
)

// handleChat handles POST /api/chat. Agent mode is the default; use_agent=false
// selects the direct RAG path. Both paths turn failures into an answer, so
// the only error replies are for bad requests.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(ctx, w, http.StatusBadRequest, "question is required")
		return
	}

	mode := modeAgent
	if (req.UseAgent != nil && !*req.UseAgent) || s.deps.Agent == nil {
		mode = modeRAG
	}
	if mode == modeRAG && s.deps.RAG == nil {
		writeError(ctx, w, http.StatusBadRequest, "direct RAG mode is not available")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ChatTimeout)
	defer cancel()

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()
	start := time.Now()

	resp := chatResponse{Mode: mode, ToolsUsed: []string{}}
	outcome := "ok"
	switch mode {
	case modeAgent:
		out := s.deps.Agent.Run(ctx, question)
		resp.Answer = out.Answer
		if out.ToolsUsed != nil {
			resp.ToolsUsed = out.ToolsUsed
		}
		if out.Stop != agent.StopAnswer {
			outcome = string(out.Stop)
		}
	case modeRAG:
		answer, ranked := s.deps.RAG.Answer(ctx, question)
		resp.Answer = answer
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			outcome = "timeout"
		case answer == rag.AnswerFailed:
			outcome = "error"
		case len(ranked) == 0:
			outcome = "empty"
		}
	}

	elapsed := time.Since(start)
	s.metrics.chatRequestsTotal.WithLabelValues(mode, outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
	log.Info("chat answered",
		slog.String("mode", mode),
		slog.String("outcome", outcome),
		slog.Any("tools_used", resp.ToolsUsed),
		slog.Duration("duration", elapsed),
	)

	writeJSON(ctx, w, http.StatusOK, resp)
}
