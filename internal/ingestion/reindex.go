// Package ingestion rebuilds the vector index from the record store. It is
// invoked by the `resume-agent reindex` command and the admin API.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/records"
)

// Lister is the record source for a re-index.
type Lister interface {
	List(ctx context.Context) ([]records.Record, error)
}

// Stats summarises one re-index run.
type Stats struct {
	// Total is the number of records listed.
	Total int `json:"total"`
	// Upserted is the number of vector entries written.
	Upserted int `json:"upserted"`
	// Errors holds per-record failures; the run continues past them.
	Errors []RecordError `json:"errors"`
}

// RecordError is one record that could not be indexed.
type RecordError struct {
	// ID is the record id.
	ID string `json:"id"`
	// Error is the failure reason.
	Error string `json:"error"`
}

// Reindexer writes one vector entry per record. Runs are serialized: a
// second caller waits for the first to finish.
type Reindexer struct {
	// source lists the records to index.
	source Lister
	// index receives the vector entries.
	index rag.Index
	// mu serializes runs.
	mu sync.Mutex
}

// NewReindexer constructs a Reindexer.
func NewReindexer(source Lister, index rag.Index) (*Reindexer, error) {
	if source == nil {
		return nil, fmt.Errorf("ingestion: source must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	return &Reindexer{source: source, index: index}, nil
}

// Document projects a record into its vector entry: namespaced id, enriched
// text and the summary-free metadata payload.
func Document(r *records.Record) rag.Document {
	return rag.Document{
		ID:       records.VectorID(r),
		Content:  records.EnrichedText(r),
		Metadata: records.Metadata(r),
	}
}

// Run rebuilds every vector entry. Entry ids are deterministic, so a re-run
// overwrites rather than duplicates. Only a failure to list records is
// returned as an error; per-record failures are collected in Stats.
func (r *Reindexer) Run(ctx context.Context, progress func(msg string)) (*Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logging.FromContext(ctx)

	recs, err := r.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list records: %w", err)
	}

	stats := &Stats{Total: len(recs), Errors: []RecordError{}}
	progress(fmt.Sprintf("indexing %d records", len(recs)))

	for i := range recs {
		rec := &recs[i]
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("ingestion: interrupted after %d records: %w", stats.Upserted, err)
		}
		if err := r.index.Put(ctx, []rag.Document{Document(rec)}); err != nil {
			log.Warn("ingestion: record failed", slog.String("id", rec.ID), slog.Any("error", err))
			stats.Errors = append(stats.Errors, RecordError{ID: rec.ID, Error: err.Error()})
			continue
		}
		stats.Upserted++
		progress(fmt.Sprintf("indexed %s", records.VectorID(rec)))
	}

	log.Info("ingestion: reindex complete",
		slog.Int("total", stats.Total),
		slog.Int("upserted", stats.Upserted),
		slog.Int("errors", len(stats.Errors)),
	)
	return stats, nil
}

// Put indexes one record, used after an admin create or update.
func (r *Reindexer) Put(ctx context.Context, rec *records.Record) error {
	if err := r.index.Put(ctx, []rag.Document{Document(rec)}); err != nil {
		return fmt.Errorf("ingestion: index %s: %w", rec.ID, err)
	}
	return nil
}

// Remove deletes the vector entry of a record.
func (r *Reindexer) Remove(ctx context.Context, rec *records.Record) error {
	if err := r.index.Remove(ctx, []string{records.VectorID(rec)}); err != nil {
		return fmt.Errorf("ingestion: remove %s: %w", rec.ID, err)
	}
	return nil
}
