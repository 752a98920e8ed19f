package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// ConfigFromEnv reads provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each backend uses its own native
// credential env vars. MODEL_NAME overrides the selected backend's model.
//
// Environment variables:
//
//	MODEL_PROVIDER = groq | ollama | openai | azure | gemini | ark (default: groq)
//
//	Groq:    GROQ_API_KEY, GROQ_MODEL (default: llama-3.1-8b-instant), GROQ_BASE_URL
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3.1)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-06-01)
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-2.0-flash)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//
//	Shared:  MODEL_MAX_TOKENS (default: 2000), MODEL_TEMPERATURE (default: 0.1)
func ConfigFromEnv() *Config {
	cfg := &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGroq))),
		Groq: ProviderGroq{
			APIKey:  os.Getenv("GROQ_API_KEY"),
			Model:   getEnvOrDefault("GROQ_MODEL", "llama-3.1-8b-instant"),
			BaseURL: getEnvOrDefault("GROQ_BASE_URL", DefaultGroqBaseURL),
		},
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3.1"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-06-01"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 2000),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.1),
		},
	}

	if name := os.Getenv("MODEL_NAME"); name != "" {
		switch cfg.Backend {
		case BackendGroq:
			cfg.Groq.Model = name
		case BackendOllama:
			cfg.Ollama.Model = name
		case BackendOpenAI:
			cfg.OpenAI.Model = name
		case BackendAzure:
			cfg.AzureOpenAI.Deployment = name
		case BackendGemini:
			cfg.Gemini.Model = name
		case BackendArk:
			cfg.Ark.Model = name
		}
	}
	return cfg
}

// NewFromEnv constructs a chat model from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (model.ToolCallingChatModel, *Config, error) {
	cfg := ConfigFromEnv()
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend constructor. It validates the config first so callers
// get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		m   model.ToolCallingChatModel
		err error
	)
	switch cfg.Backend {
	case BackendGroq:
		m, err = newGroq(ctx, cfg)
	case BackendOllama:
		m, err = newOllama(ctx, cfg)
	case BackendOpenAI:
		m, err = newOpenAI(ctx, cfg)
	case BackendAzure:
		m, err = newAzure(ctx, cfg)
	case BackendGemini:
		m, err = newGemini(ctx, cfg)
	case BackendArk:
		m, err = newArk(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: create %s chat model: %w", cfg.Backend, err)
	}
	return m, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
