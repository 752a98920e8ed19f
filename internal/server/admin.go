package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// handleAdminVerify handles POST /api/admin. Reaching it means adminAuth
// accepted the passcode.
func (s *Server) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"status": "ok", "authenticated": true})
}

// handleListRecords handles GET /api/admin/records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := s.deps.Store.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("admin: list records failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok", "records": recs, "count": len(recs)})
}

// handleGetRecord handles GET /api/admin/records/{id}. Unlike the tools, the
// admin view includes the summary.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := s.deps.Store.Get(ctx, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok", "record": rec})
}

// handleCreateRecord handles POST /api/admin/records.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, ok := s.readRecord(w, r, "")
	if !ok {
		return
	}
	if _, err := s.deps.Store.Get(ctx, rec.ID); err == nil {
		writeError(ctx, w, http.StatusConflict, fmt.Sprintf("record %s already exists", rec.ID))
		return
	}
	s.saveRecord(w, r, rec, http.StatusCreated, "Record created successfully")
}

// handleUpdateRecord handles PUT /api/admin/records/{id}. The path id wins
// over any id in the body.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	existing, err := s.deps.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, ok := s.readRecord(w, r, id)
	if !ok {
		return
	}
	// A type change moves the vector entry to a new id.
	if existing.Type != rec.Type && s.deps.Indexer != nil {
		if err := s.deps.Indexer.Remove(ctx, existing); err != nil {
			logging.FromContext(ctx).Warn("admin: stale vector entry not removed", slog.Any("error", err))
		}
	}
	s.saveRecord(w, r, rec, http.StatusOK, "Record updated successfully")
}

// handleDeleteRecord handles DELETE /api/admin/records/{id}. The vector entry
// is removed too.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	id := r.PathValue("id")

	rec, err := s.deps.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Store.Delete(ctx, id); err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"status": "ok", "message": "Record deleted successfully", "id": id}
	if s.deps.Indexer != nil {
		if err := s.deps.Indexer.Remove(ctx, rec); err != nil {
			log.Warn("admin: vector entry not removed", slog.String("id", id), slog.Any("error", err))
			resp["index_error"] = err.Error()
		}
	}
	log.Info("admin: record deleted", slog.String("id", id))
	writeJSON(ctx, w, http.StatusOK, resp)
}

// handleReindex handles POST /api/admin/reindex.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.deps.Indexer == nil {
		writeError(ctx, w, http.StatusServiceUnavailable, "vector index is not configured")
		return
	}
	stats, err := s.deps.Indexer.Run(ctx, nil)
	if err != nil {
		logging.FromContext(ctx).Error("admin: reindex failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.reindexedRecords.Add(float64(stats.Upserted))
	writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok", "message": "Vector upsert completed", "stats": stats})
}

// handleGetSystemPrompt handles GET /api/admin/system-prompt.
func (s *Server) handleGetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.deps.Store.GetConfig(ctx, store.KeySystemPrompt)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok", "prompt": "", "default": true})
		return
	}
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok", "prompt": p, "default": false})
}

// handlePutSystemPrompt handles PUT /api/admin/system-prompt and drops the
// cached copy so the next answer uses the new prompt.
func (s *Server) handlePutSystemPrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req systemPromptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	p := strings.TrimSpace(req.Prompt)
	if p == "" {
		writeError(ctx, w, http.StatusBadRequest, "prompt is required")
		return
	}
	if err := s.deps.Store.SetConfig(ctx, store.KeySystemPrompt, p); err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.deps.Prompt != nil {
		s.deps.Prompt.Invalidate()
	}
	logging.FromContext(ctx).Info("admin: system prompt updated", slog.Int("length", len(p)))
	writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ok"})
}

// readRecord decodes and validates a record body. pathID, when set,
// overrides the body id. On failure the error reply has been written.
func (s *Server) readRecord(w http.ResponseWriter, r *http.Request, pathID string) (*records.Record, bool) {
	ctx := r.Context()
	var in recordInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if pathID != "" {
		in.ID = pathID
	}
	rec, err := in.record()
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return rec, true
}

// saveRecord upserts rec and mirrors it into the vector index. An index
// failure is reported but does not undo the write; a re-index repairs it.
func (s *Server) saveRecord(w http.ResponseWriter, r *http.Request, rec *records.Record, status int, msg string) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	if err := s.deps.Store.Upsert(ctx, *rec); err != nil {
		log.Error("admin: upsert failed", slog.String("id", rec.ID), slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"status": "ok", "message": msg, "id": rec.ID}
	if s.deps.Indexer != nil {
		if err := s.deps.Indexer.Put(ctx, rec); err != nil {
			log.Warn("admin: record saved but not indexed", slog.String("id", rec.ID), slog.Any("error", err))
			resp["index_error"] = err.Error()
		}
	}
	log.Info("admin: record saved", slog.String("id", rec.ID))
	writeJSON(ctx, w, status, resp)
}

// record converts the input to a normalized, validated Record.
func (in *recordInput) record() (*records.Record, error) {
	rec := &records.Record{
		ID:       in.ID,
		Type:     records.Type(in.Type),
		Title:    in.Title,
		Summary:  strings.TrimSpace(in.Summary),
		Tags:     in.Tags,
		Priority: records.DefaultPriority,
	}
	if in.Priority != nil {
		rec.Priority = *in.Priority
	}

	var err error
	if rec.Facts, err = parseFacts(in.Facts); err != nil {
		return nil, err
	}
	if rec.DetailSite, err = records.ParseLinks(in.DetailSite); err != nil {
		return nil, fmt.Errorf("detail_site: %w", err)
	}
	if rec.AdditionalURL, err = records.ParseLinks(in.AdditionalURL); err != nil {
		return nil, fmt.Errorf("additional_url: %w", err)
	}
	if rec.StartDate, err = records.ParseOptionalDate(in.StartDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if rec.EndDate, err = records.ParseOptionalDate(in.EndDate); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}

	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// parseFacts accepts a JSON list of strings or newline-separated text.
func parseFacts(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("facts: %w", err)
		}
		return records.SplitFacts(text), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("facts: must be a list of strings or text: %w", err)
	}
	return list, nil
}
