package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// probeClient is used for readiness probes only.
var probeClient = &http.Client{Timeout: 5 * time.Second}

// HealthCheck probes the selected backend without spending tokens: a model
// listing for OpenAI-compatible APIs, /api/tags for Ollama. Backends without
// a cheap listing endpoint (gemini, ark) report healthy when configured.
func (c *Config) HealthCheck(ctx context.Context) error {
	url, headers := c.probe()
	if url == "" {
		return c.Validate()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("provider: build probe: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := probeClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: %s unreachable: %w", c.Backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider: %s probe returned HTTP %d", c.Backend, resp.StatusCode)
	}
	return nil
}

// probe returns the listing endpoint and auth headers for the backend.
func (c *Config) probe() (string, map[string]string) {
	switch c.Backend {
	case BackendGroq:
		base := c.Groq.BaseURL
		if base == "" {
			base = DefaultGroqBaseURL
		}
		return strings.TrimRight(base, "/") + "/models", bearer(c.Groq.APIKey)
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return strings.TrimRight(base, "/") + "/models", bearer(c.OpenAI.APIKey)
	case BackendAzure:
		return strings.TrimRight(c.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + c.AzureOpenAI.APIVersion,
			map[string]string{"api-key": c.AzureOpenAI.APIKey}
	case BackendOllama:
		return strings.TrimRight(c.Ollama.Host, "/") + "/api/tags", nil
	default:
		return "", nil
	}
}

func bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}
