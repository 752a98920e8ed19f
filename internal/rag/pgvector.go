package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGVectorConfig configures the pgvector-backed store.
type PGVectorConfig struct {
	// Table is the table holding vector entries (default: vector_entries).
	Table string

	// Dimensions is the embedding length; the column type is vector(Dimensions).
	Dimensions int
}

// PGVectorStore implements VectorStore on a Postgres table with the pgvector
// extension. It reuses the record store's connection pool.
type PGVectorStore struct {
	// db is the shared Postgres pool.
	db *sql.DB

	// table is the validated table name.
	table string
}

// NewPGVectorStore ensures the vector extension and table exist.
func NewPGVectorStore(ctx context.Context, db *sql.DB, cfg *PGVectorConfig) (*PGVectorStore, error) {
	table := cfg.Table
	if table == "" {
		table = "vector_entries"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", table)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector: dimensions must be positive, got %d", cfg.Dimensions)
	}

	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id          TEXT PRIMARY KEY,
    record_type TEXT NOT NULL DEFAULT '',
    content     TEXT NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}',
    embedding   vector(%d) NOT NULL
)`, table, cfg.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_type ON %s (record_type)`, table, table),
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("pgvector: migrate: %w", err)
		}
	}
	return &PGVectorStore{db: db, table: table}, nil
}

// Upsert writes every document inside one transaction; each row is replaced
// whole on conflict.
func (s *PGVectorStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("pgvector: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(`
INSERT INTO %s (id, record_type, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    record_type = excluded.record_type,
    content     = excluded.content,
    metadata    = excluded.metadata,
    embedding   = excluded.embedding`, s.table)

	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: encode metadata for %s: %w", d.ID, err)
		}
		recordType, _ := d.Metadata["type"].(string)
		if _, err := tx.ExecContext(ctx, stmt, d.ID, recordType, d.Content, string(meta), pgvector.NewVector(embeddings[i])); err != nil {
			return fmt.Errorf("pgvector: upsert %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

// Search orders by cosine distance; the score is 1 - distance. The "type"
// filter key maps to the indexed record_type column, other keys match
// against the JSONB metadata.
func (s *PGVectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]Document, error) {
	args := []any{pgvector.NewVector(queryEmbedding)}
	var where []string
	for k, v := range filter {
		args = append(args, v)
		if k == "type" {
			where = append(where, fmt.Sprintf("record_type = $%d", len(args)))
			continue
		}
		args = append(args, k)
		where = append(where, fmt.Sprintf("metadata->>$%d = $%d", len(args), len(args)-1))
	}
	args = append(args, topK)

	q := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score FROM %s`, s.table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []Document{}
	for rows.Next() {
		var (
			d     Document
			meta  []byte
			score float64
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: decode metadata for %s: %w", d.ID, err)
		}
		d.Score = float32(score)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	return docs, nil
}

// Delete removes rows by id.
func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", s.table, strings.Join(ph, ", "))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	return nil
}

// Ping checks the shared pool.
func (s *PGVectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op: the pool belongs to the record store.
func (s *PGVectorStore) Close() error {
	return nil
}
