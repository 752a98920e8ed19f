package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/philippgille/chromem-go"
)

// DefaultCollection is the vector collection name used when none is configured.
const DefaultCollection = "resume"

// chromemPayloadKey holds the JSON-encoded metadata in a chromem document.
// chromem metadata is string-only, so scalar string fields are additionally
// copied as top-level keys for where-filtering.
const chromemPayloadKey = "_payload"

// errNoEmbeddingFunc is returned if chromem ever tries to embed on its own.
// Every call in this package passes pre-computed vectors.
var errNoEmbeddingFunc = errors.New("chromem: embeddings are computed by the caller")

// ChromemConfig configures the embedded chromem-go vector store.
type ChromemConfig struct {
	// Path persists the database to this directory. Empty keeps it in memory.
	Path string

	// Collection is the collection name (default: DefaultCollection).
	Collection string

	// Compress gzips the persisted files.
	Compress bool
}

// ChromemStore implements VectorStore on an embedded chromem-go database.
// It needs no external service, which makes it the default backend.
type ChromemStore struct {
	// db is the chromem database, in memory or persisted.
	db *chromem.DB

	// coll is the single collection holding every vector entry.
	coll *chromem.Collection
}

// NewChromemStore opens (or creates) the chromem database and collection.
func NewChromemStore(cfg *ChromemConfig) (*ChromemStore, error) {
	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path := expandHome(cfg.Path)
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("chromem: create %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("chromem: open %s: %w", path, err)
		}
	}

	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	}
	coll, err := db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %q: %w", name, err)
	}
	return &ChromemStore{db: db, coll: coll}, nil
}

// Upsert replaces each document. chromem overwrites documents that share
// an id, so repeated upserts are idempotent.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("chromem: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	out := make([]chromem.Document, len(docs))
	for i, d := range docs {
		meta, err := encodeChromemMetadata(d.Metadata)
		if err != nil {
			return fmt.Errorf("chromem: encode metadata for %s: %w", d.ID, err)
		}
		out[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  meta,
			Embedding: embeddings[i],
		}
	}

	if err := s.coll.AddDocuments(ctx, out, 1); err != nil {
		return fmt.Errorf("chromem: add documents: %w", err)
	}
	return nil
}

// Search returns the topK most similar documents. chromem rejects a result
// count larger than the collection, so topK is capped at its size.
func (s *ChromemStore) Search(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]Document, error) {
	n := s.coll.Count()
	if n == 0 {
		return []Document{}, nil
	}
	topK = min(topK, n)

	var where map[string]string
	if len(filter) > 0 {
		where = map[string]string(filter)
	}

	results, err := s.coll.QueryEmbedding(ctx, queryEmbedding, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		meta, err := decodeChromemMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("chromem: decode metadata for %s: %w", r.ID, err)
		}
		docs = append(docs, Document{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: meta,
			Score:    r.Similarity,
		})
	}
	return docs, nil
}

// Delete removes documents by id.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.coll.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem: delete: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *ChromemStore) Count() int {
	return s.coll.Count()
}

// Close is a no-op; persisted chromem databases write on every change.
func (s *ChromemStore) Close() error {
	return nil
}

func encodeChromemMetadata(m map[string]any) (map[string]string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]string{chromemPayloadKey: string(payload)}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func decodeChromemMetadata(m map[string]string) (map[string]any, error) {
	raw, ok := m[chromemPayloadKey]
	if !ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
