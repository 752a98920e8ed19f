// Package tracing wires optional Langfuse tracing into eino callbacks so every
// completion call made by the orchestrator and the direct RAG path is traced.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/Jiangye-Song/resume-agent/internal/version"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. Returns a flush function that must be called
// before process exit to ensure all traces are sent. If Langfuse is not
// configured, both return values are nil and tracing is silently disabled.
func Setup() (callbacks.Handler, func(), bool) {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "resume-agent",
		Release:   version.Version,
	})

	return handler, flusher, true
}

// Install registers the Langfuse handler globally when configured and returns
// the flush function (a no-op when tracing is disabled).
func Install(log *slog.Logger) func() {
	handler, flush, ok := Setup()
	if !ok {
		log.Debug("tracing: langfuse not configured")
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: langfuse enabled", slog.String("host", valueOr(os.Getenv("LANGFUSE_HOST"), defaultHost)))
	return flush
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
