// Package provider selects and constructs the eino chat model behind the
// completion client. Supported backends: Groq, OpenAI, Azure OpenAI, Ollama,
// Google Gemini and Volcengine Ark.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGroq selects Groq through its OpenAI-compatible endpoint.
	BackendGroq Backend = "groq"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible API root.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// ProviderGroq holds Groq settings.
type ProviderGroq struct {
	// APIKey is read from GROQ_API_KEY.
	APIKey string
	// Model is read from GROQ_MODEL.
	Model string
	// BaseURL overrides DefaultGroqBaseURL.
	BaseURL string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama server URL.
	Host string
	// Model is the chat model tag.
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is read from OPENAI_API_KEY.
	APIKey string
	// Model is read from OPENAI_MODEL.
	Model string
	// BaseURL points at an OpenAI-compatible server when set.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is read from AZURE_OPENAI_API_KEY.
	APIKey string
	// Endpoint is the resource URL.
	Endpoint string
	// Deployment is the chat deployment name.
	Deployment string
	// APIVersion is the REST API version.
	APIVersion string
}

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	// APIKey is read from GOOGLE_API_KEY.
	APIKey string
	// Model is read from GEMINI_MODEL.
	Model string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is read from ARK_API_KEY.
	APIKey string
	// Model is the Ark endpoint id.
	Model string
	// BaseURL overrides the regional default.
	BaseURL string
}

// SharedTuning holds generation defaults applied to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds the selected backend and every backend's settings. Only the
// selected backend's block is validated.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend
	// Groq settings.
	Groq ProviderGroq
	// Ollama settings.
	Ollama ProviderOllama
	// OpenAI settings.
	OpenAI ProviderOpenAI
	// AzureOpenAI settings.
	AzureOpenAI ProviderAzureOpenAI
	// Gemini settings.
	Gemini ProviderGemini
	// Ark settings.
	Ark ProviderArk
	// Tuning is shared by all backends.
	Tuning SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the env var that supplies it.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}

	switch c.Backend {
	case BackendGroq:
		need(c.Groq.APIKey, "GROQ_API_KEY")
		need(c.Groq.Model, "GROQ_MODEL")
	case BackendOllama:
		need(c.Ollama.Host, "OLLAMA_HOST")
		need(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendOpenAI:
		need(c.OpenAI.APIKey, "OPENAI_API_KEY")
		need(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendGemini:
		need(c.Gemini.APIKey, "GOOGLE_API_KEY")
		need(c.Gemini.Model, "GEMINI_MODEL")
	case BackendArk:
		need(c.Ark.APIKey, "ARK_API_KEY")
		need(c.Ark.Model, "ARK_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: groq, ollama, openai, azure, gemini, ark)", c.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be within [0, 2], got %v", c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model identifier for the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGroq:
		return c.Groq.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}
