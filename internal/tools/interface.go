// Package tools defines the closed set of query tools the agent can invoke.
// Every tool satisfies eino's tool.InvokableTool, so its schema can be
// offered to a chat model directly, and this package's Tool interface, whose
// Execute never fails: errors come back as a Result with Success=false.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
)

// Tool names. The registry is validated against this list at startup.
const (
	NameSearch = "rag_search_by_domain"
	NameByDate = "get_records_by_date"
	NameFilter = "filter_records"
	NameDetail = "get_record_details"
	NameStats  = "get_statistics"
)

// domainAll searches every record type.
const domainAll = "all"

// Names lists every tool in the order it is offered to the model.
var Names = []string{NameSearch, NameByDate, NameFilter, NameDetail, NameStats}

// Result is the uniform outcome of a tool execution.
type Result struct {
	// Success is false for validation, not-found and backend failures.
	Success bool `json:"success"`
	// Data is the tool payload; an empty list or null on failure.
	Data any `json:"data"`
	// Error is a human-readable failure reason.
	Error string `json:"error,omitempty"`
	// Metadata describes how the query was interpreted.
	Metadata map[string]any `json:"metadata"`
}

// JSON serializes the result for a tool-result turn.
func (r Result) JSON() string {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Result{Error: "result encoding failed: " + err.Error(), Metadata: map[string]any{}})
	}
	return string(b)
}

func succeed(data any, meta map[string]any) Result {
	if meta == nil {
		meta = map[string]any{}
	}
	return Result{Success: true, Data: data, Metadata: meta}
}

func failf(data any, format string, args ...any) Result {
	return Result{Data: data, Error: fmt.Sprintf(format, args...), Metadata: map[string]any{}}
}

// Tool is the contract shared by every query strategy.
type Tool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the model.
	Name() string

	// Execute runs the tool on JSON arguments. It never returns an error;
	// every failure is reported in the Result.
	Execute(ctx context.Context, args json.RawMessage) Result
}

// invoke adapts Execute to eino's InvokableRun signature.
func invoke(ctx context.Context, t Tool, argumentsInJSON string) (string, error) {
	return t.Execute(ctx, json.RawMessage(argumentsInJSON)).JSON(), nil
}
