// Package rag is the vector search client and the retrieval ranking policy.
//
// Three vector backends satisfy VectorStore: Qdrant (managed), chromem-go
// (embedded, optionally persisted to disk) and pgvector (shares the Postgres
// record store). Every backend returns hits as the canonical Document shape
// so nothing downstream branches on backend representation.
package rag

import (
	"context"
)

// Document is one vector entry: stored on upsert, returned as a hit on search.
type Document struct {
	// ID is the namespaced vector entry id ("{type}:{record id}").
	ID string

	// Content is the enriched text that was embedded.
	Content string

	// Metadata mirrors the record fields as a JSON-shaped payload.
	Metadata map[string]any

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// Filter restricts a search to entries whose metadata string value equals
// the given value for every key. A nil or empty Filter matches everything.
type Filter map[string]string

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or replaces a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns up to topK documents most similar to queryEmbedding,
	// highest score first, restricted by filter.
	Search(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]Document, error)

	// Delete removes documents by their IDs. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the documents most relevant to free text.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Document, error)
}

// Index is the full text-in vector search surface: the semantic search tool
// and the direct RAG path read through Retrieve, the re-index pipeline and
// the admin API write through Put and Remove.
type Index interface {
	Retriever

	// Put embeds each document's Content and upserts it.
	Put(ctx context.Context, docs []Document) error

	// Remove deletes entries by vector id.
	Remove(ctx context.Context, ids []string) error
}

// pinger is implemented by stores that can report their own health.
type pinger interface {
	Ping(ctx context.Context) error
}
