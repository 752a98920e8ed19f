// Package embedder converts text into dense vectors for the vector index.
// Each implementation talks to a different backend (Ollama, OpenAI, Azure
// OpenAI) over its REST API.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBatch caps the number of texts sent in one embedding request. A full
// re-index sends every record, so larger inputs are split.
const maxBatch = 64

// postJSON marshals body, POSTs it to url with headers and decodes the
// response into out. The HTTP status is returned so callers can surface the
// backend's own error message.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

// inBatches calls fn on consecutive slices of texts no longer than maxBatch
// and concatenates the results.
func inBatches(texts []string, fn func(batch []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		vecs, err := fn(texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func statusOK(code int) bool {
	return code >= 200 && code < 300
}
