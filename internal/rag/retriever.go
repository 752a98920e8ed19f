package rag

import (
	"context"
	"fmt"
)

// EmbeddingIndex implements Index by combining an Embedder and a VectorStore.
// Queries and documents are embedded client-side and the store only ever
// sees vectors.
type EmbeddingIndex struct {
	// embedder converts text to dense vectors.
	embedder Embedder

	// store persists vectors and performs the similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewEmbeddingIndex constructs an EmbeddingIndex from the given Embedder and
// VectorStore. defaultTopK sets the fallback result count when Retrieve is
// called with topK=0.
func NewEmbeddingIndex(embedder Embedder, store VectorStore, defaultTopK int) (*EmbeddingIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &EmbeddingIndex{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant documents.
// If topK is 0 the defaultTopK configured at construction time is used.
func (x *EmbeddingIndex) Retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Document, error) {
	if topK <= 0 {
		topK = x.defaultTopK
	}

	embeddings, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	docs, err := x.store.Search(ctx, embeddings[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}

// Put embeds every document's Content in one batch and upserts the result.
func (x *EmbeddingIndex) Put(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	embeddings, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("rag: embedding documents failed: %w", err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("rag: embedder returned %d vectors for %d documents", len(embeddings), len(docs))
	}

	if err := x.store.Upsert(ctx, docs, embeddings); err != nil {
		return fmt.Errorf("rag: upsert failed: %w", err)
	}
	return nil
}

// Remove deletes vector entries by id.
func (x *EmbeddingIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("rag: delete failed: %w", err)
	}
	return nil
}

// Name identifies the index in readiness reports.
func (x *EmbeddingIndex) Name() string {
	return "vector_index"
}

// Ping reports the health of the underlying store when it supports it.
func (x *EmbeddingIndex) Ping(ctx context.Context) error {
	if p, ok := x.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the underlying store.
func (x *EmbeddingIndex) Close() error {
	return x.store.Close()
}
