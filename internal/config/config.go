// Package config provides YAML-based configuration for resume-agent.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a deployment can override any file value.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RESUMEAGENT_CONFIG environment variable
//  3. ~/.resume-agent/config.yaml
//  4. ./resume-agent.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures client-side embeddings for the vector index.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector selects and configures the vector search backend.
	Vector VectorConfig `yaml:"vector"`

	// Database configures the record store.
	Database DatabaseConfig `yaml:"database"`

	// Agent configures the tool-calling orchestrator.
	Agent AgentConfig `yaml:"agent"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: groq, openai, ollama, azure, gemini, ark.
	Provider string `yaml:"provider"`

	// Name overrides the provider's default model name.
	Name string `yaml:"name"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Groq holds Groq settings (OpenAI-compatible API).
	Groq GroqConfig `yaml:"groq"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`

	// Ark holds Volcengine Ark settings.
	Ark ArkConfig `yaml:"ark"`
}

// GroqConfig holds Groq provider settings.
type GroqConfig struct {
	// APIKey is the Groq API key. Prefer env var GROQ_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Groq model name.
	Model string `yaml:"model"`
	// BaseURL overrides the Groq OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points the client at an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint/model id.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// VectorConfig holds vector search backend settings.
type VectorConfig struct {
	// Backend selects the index: qdrant, chromem, pgvector.
	Backend string `yaml:"backend"`
	// Collection is the collection (or table) holding vector entries.
	Collection string `yaml:"collection"`
	// ChromemPath is the persistence directory for the chromem backend.
	ChromemPath string `yaml:"chromem_path"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// DatabaseConfig holds record store settings.
type DatabaseConfig struct {
	// Driver selects the SQL dialect: sqlite or postgres.
	Driver string `yaml:"driver"`
	// URL is a postgres DSN or a SQLite file path. Prefer env var DATABASE_URL.
	URL string `yaml:"url"`
	// PoolMin is the number of idle connections kept open.
	PoolMin int `yaml:"pool_min"`
	// PoolMax caps the number of open connections.
	PoolMax int `yaml:"pool_max"`
}

// AgentConfig holds orchestrator settings.
type AgentConfig struct {
	// MaxIterations is the LLM decision ceiling per question.
	MaxIterations int `yaml:"max_iterations"`
	// Timeout bounds one question end to end.
	Timeout time.Duration `yaml:"timeout"`
	// PromptCacheTTL is how long the stored system prompt is cached.
	PromptCacheTTL time.Duration `yaml:"prompt_cache_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the sustained requests per second allowed per client IP.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the burst size per client IP.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_NAME", func(c *Config) string { return c.Model.Name }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"GROQ_API_KEY", func(c *Config) string { return c.Model.Groq.APIKey }},
	{"GROQ_MODEL", func(c *Config) string { return c.Model.Groq.Model }},
	{"GROQ_BASE_URL", func(c *Config) string { return c.Model.Groq.BaseURL }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Vector.Backend }},
	{"VECTOR_COLLECTION", func(c *Config) string { return c.Vector.Collection }},
	{"CHROMEM_PATH", func(c *Config) string { return c.Vector.ChromemPath }},
	{"QDRANT_HOST", func(c *Config) string { return c.Vector.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Vector.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Vector.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Vector.Qdrant.TLS) }},
	{"DATABASE_DRIVER", func(c *Config) string { return c.Database.Driver }},
	{"DATABASE_URL", func(c *Config) string { return c.Database.URL }},
	{"DATABASE_POOL_MIN", func(c *Config) string { return intStr(c.Database.PoolMin) }},
	{"DATABASE_POOL_MAX", func(c *Config) string { return intStr(c.Database.PoolMax) }},
	{"AGENT_MAX_ITERATIONS", func(c *Config) string { return intStr(c.Agent.MaxIterations) }},
	{"AGENT_TIMEOUT", func(c *Config) string { return durationStr(c.Agent.Timeout) }},
	{"PROMPT_CACHE_TTL", func(c *Config) string { return durationStr(c.Agent.PromptCacheTTL) }},
	{"RESUMEAGENT_HOST", func(c *Config) string { return c.Server.Host }},
	{"RESUMEAGENT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RESUMEAGENT_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"RESUMEAGENT_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RESUMEAGENT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".resume-agent", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("resume-agent.yaml"); err == nil {
		return "resume-agent.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// durationStr renders d in time.ParseDuration form, "" for zero.
func durationStr(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
