package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

const (
	factsTemperature float32 = 0.3
	factsMaxTokens           = 500
	// bulletSymbols are stripped from the start of generated lines.
	bulletSymbols = "•-*→▸▹►‣⁃"
)

const factsSystemPrompt = "You are a helpful assistant that extracts key facts from text summaries. Be concise and specific."

// factsPrompt asks for one fact per line with no list markers.
const factsPrompt = `Convert the following summary into a concise list of factual bullet points.
Extract only the key facts, achievements, and technical details.
Each fact should be one line, clear and specific.
Return only the bullet points, one per line, without numbering or bullet symbols.

Summary:
%s

Facts (one per line):`

// handleGenerateFacts handles POST /api/admin/generate-facts.
func (s *Server) handleGenerateFacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req generateFactsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		writeError(ctx, w, http.StatusBadRequest, "summary is required")
		return
	}
	if s.deps.Completer == nil {
		writeError(ctx, w, http.StatusServiceUnavailable, "model is not configured")
		return
	}

	temp := factsTemperature
	msg, err := s.deps.Completer.Complete(ctx, completion.Request{
		Messages: []*schema.Message{
			schema.SystemMessage(factsSystemPrompt),
			schema.UserMessage(fmt.Sprintf(factsPrompt, summary)),
		},
		Temperature: &temp,
		MaxTokens:   factsMaxTokens,
	})
	if err != nil {
		logging.FromContext(ctx).Error("admin: fact generation failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok", "facts": cleanFacts(msg.Content)})
}

// cleanFacts splits model output into facts: blank and '#' lines are
// dropped and leading bullet symbols removed.
func cleanFacts(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, bulletSymbols))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
