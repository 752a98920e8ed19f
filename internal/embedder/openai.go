package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIEmbedder implements rag.Embedder using the OpenAI (or Azure OpenAI)
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// baseURL is the API base (e.g. "https://api.openai.com/v1" or an Azure endpoint).
	baseURL string
	// apiKey is the Bearer token (OpenAI) or api-key header value (Azure).
	apiKey string
	// model is the embedding model name (e.g. "text-embedding-3-small").
	model string
	// dimensions is the desired embedding vector length (0 = model default).
	dimensions int
	// azure selects Azure-style auth (api-key header) over Bearer token.
	azure bool
	// apiVersion is the Azure OpenAI API version query param.
	apiVersion string
	// client is the shared HTTP client.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model (Azure: the deployment name).
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// endpoint returns the embeddings URL and auth headers for this backend.
func (e *OpenAIEmbedder) endpoint() (string, map[string]string) {
	if e.azure {
		return e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion,
			map[string]string{"api-key": e.apiKey}
	}
	return e.baseURL + "/embeddings", map[string]string{"Authorization": "Bearer " + e.apiKey}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	url, headers := e.endpoint()

	vecs, err := inBatches(texts, func(batch []string) ([][]float32, error) {
		var result openaiEmbedResponse
		status, err := postJSON(ctx, e.client, url, headers,
			openaiEmbedRequest{Input: batch, Model: e.model, Dimensions: e.dimensions}, &result)
		if err != nil {
			return nil, err
		}
		if !statusOK(status) {
			if result.Error != nil {
				return nil, fmt.Errorf("%s", result.Error.Message)
			}
			return nil, fmt.Errorf("HTTP %d", status)
		}

		// Data may arrive out of order; place each vector by its index.
		out := make([][]float32, len(batch))
		for _, d := range result.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("index %d out of range [0, %d)", d.Index, len(batch))
			}
			out[d.Index] = d.Embedding
		}
		for i, v := range out {
			if v == nil {
				return nil, fmt.Errorf("missing embedding for input %d", i)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return vecs, nil
}
