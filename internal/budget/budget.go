// Package budget estimates token usage of prompts sent to the completion
// service. Backends use different tokenizers, so the estimate is a
// character heuristic: 1 token ≈ 4 characters of English prose or JSON.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageOverhead approximates the role/framing tokens each message costs.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the input budget above which the orchestrator
	// logs a warning. It fits 8k-context models with room for a 2000-token reply.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// counting role, content and any tool call names and arguments.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
		for _, tc := range m.ToolCalls {
			total += Estimate(tc.Function.Name)
			total += Estimate(tc.Function.Arguments)
		}
	}
	return total
}

// EstimateTools returns the estimated token cost of declaring tools to the
// model, based on the name and description of each.
func EstimateTools(tools []*schema.ToolInfo) int {
	total := 0
	for _, t := range tools {
		total += perMessageOverhead
		total += Estimate(t.Name)
		total += Estimate(t.Desc)
	}
	return total
}

// Exceeds reports whether msgs plus tools are estimated to exceed maxTokens,
// returning the estimate alongside.
func Exceeds(msgs []*schema.Message, tools []*schema.ToolInfo, maxTokens int) (int, bool) {
	n := EstimateMessages(msgs) + EstimateTools(tools)
	return n, n > maxTokens
}
