package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelHints are name fragments of chat/completion models that are not
// embedding models. A match in EMBEDDING_MODEL produces a startup warning.
var chatModelHints = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama-3", "llama2", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen", "solar",
}

// looksLikeChatModel reports whether model resembles a known chat model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, hint := range chatModelHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check run before the embedder and the vector index
// are built. It returns an error when the resolved backend is clearly missing
// credentials and logs a warning when EMBEDDING_MODEL looks like a chat model
// or when the backend was inherited implicitly from a chat-only provider.
func Validate(log *slog.Logger) error {
	backend := Backend()

	if os.Getenv("EMBEDDING_PROVIDER") == "" {
		if p := os.Getenv("MODEL_PROVIDER"); p != "" && p != backend {
			log.Warn("embedder: chat provider does not serve embeddings, using ollama",
				slog.String("model_provider", p),
				slog.String("hint", "set EMBEDDING_PROVIDER=openai or azure to use a hosted embedder"),
			)
		}
	}

	switch backend {
	case "openai":
		if firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no OpenAI API key found; set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no Azure API key found; set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: no Azure endpoint found; set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "ollama":
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid values: ollama, openai, azure)", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, retrieval quality will suffer",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
