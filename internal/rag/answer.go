package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

// AnswerFailed is returned to the user when retrieval or completion fails.
const AnswerFailed = "I apologize, but I encountered an error processing your question. Please try again."

// answerTemperature matches the original direct RAG generation setting.
const answerTemperature = float32(0.7)

// PromptSource supplies the system prompt for direct answers.
type PromptSource interface {
	Get(ctx context.Context) (string, error)
}

// Answerer is the direct RAG path: rank a candidate pool, build a labeled
// context and make one completion call. No tools are involved.
type Answerer struct {
	// retriever fetches the candidate pool.
	retriever Retriever
	// llm generates the answer.
	llm completion.Completer
	// prompt supplies the system prompt; may be nil.
	prompt PromptSource
}

// NewAnswerer constructs an Answerer. prompt may be nil.
func NewAnswerer(r Retriever, llm completion.Completer, prompt PromptSource) *Answerer {
	return &Answerer{retriever: r, llm: llm, prompt: prompt}
}

// Answer returns the answer text and the hits used as context. Failures are
// logged and turned into AnswerFailed; an empty pool yields NoDocuments
// without calling the model.
func (a *Answerer) Answer(ctx context.Context, question string) (string, []Ranked) {
	log := logging.FromContext(ctx)

	pool, err := a.retriever.Retrieve(ctx, question, CandidatePool, nil)
	if err != nil {
		log.Error("rag: retrieve failed", slog.String("error", err.Error()))
		return AnswerFailed, nil
	}
	if len(pool) == 0 {
		return NoDocuments, nil
	}

	ranked := Rank(pool)
	tiers := Partition(ranked)
	log.Info("rag: context assembled",
		slog.Int("pool", len(pool)),
		slog.Int("highest", len(tiers.Highest)),
		slog.Int("medium", len(tiers.Medium)),
		slog.Int("fallback", len(tiers.Fallback)),
	)

	msgs := make([]*schema.Message, 0, 2)
	if a.prompt != nil {
		sys, err := a.prompt.Get(ctx)
		if err != nil {
			log.Warn("rag: system prompt unavailable", slog.String("error", err.Error()))
		}
		if sys != "" {
			msgs = append(msgs, schema.SystemMessage(sys))
		}
	}
	msgs = append(msgs, schema.UserMessage(BuildPrompt(tiers.Context(), question)))

	temp := answerTemperature
	resp, err := a.llm.Complete(ctx, completion.Request{Messages: msgs, Temperature: &temp})
	if err != nil {
		log.Error("rag: completion failed", slog.String("error", err.Error()))
		return AnswerFailed, ranked
	}
	return strings.TrimSpace(resp.Content), ranked
}

// BuildPrompt renders the user prompt around the assembled context.
func BuildPrompt(contextText, question string) string {
	return fmt.Sprintf("Use the following context to answer the question.\n\nContext:\n%s\n\nQuestion: %s\nAnswer:", contextText, question)
}
