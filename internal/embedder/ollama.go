package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "nomic-embed-text").
	model string
	// client is the shared HTTP client.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL.
	Host string
	// Model is the embedding model name.
	Model string
	// Timeout bounds one HTTP request. Defaults to 60s.
	Timeout time.Duration
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaEmbedder{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := inBatches(texts, func(batch []string) ([][]float32, error) {
		var result ollamaEmbedResponse
		status, err := postJSON(ctx, e.client, e.host+"/api/embed", nil,
			ollamaEmbedRequest{Model: e.model, Input: batch}, &result)
		if err != nil {
			return nil, err
		}
		if !statusOK(status) {
			if result.Error != "" {
				return nil, fmt.Errorf("%s", result.Error)
			}
			return nil, fmt.Errorf("HTTP %d", status)
		}
		return result.Embeddings, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return vecs, nil
}
