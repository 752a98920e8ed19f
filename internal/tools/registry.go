package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// Registry is the fixed name-to-tool mapping the agent dispatches through.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	// byName maps tool name to implementation.
	byName map[string]Tool
	// ordered preserves the declaration order for schema listings.
	ordered []Tool
}

// NewRegistry builds a registry and checks that it holds exactly the tools
// listed in Names, each once.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Name()
		if !slices.Contains(Names, name) {
			return nil, fmt.Errorf("tools: unknown tool %q", name)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		r.byName[name] = t
	}
	for _, name := range Names {
		t, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("tools: missing tool %q", name)
		}
		r.ordered = append(r.ordered, t)
	}
	return r, nil
}

// Default wires the five query tools over a record store and a vector index.
func Default(s store.RecordStore, index rag.Retriever) (*Registry, error) {
	return NewRegistry(
		NewSearchTool(index),
		NewDateTool(s),
		NewFilterTool(s),
		NewDetailTool(s),
		NewStatsTool(s),
	)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Tools returns every tool in declaration order.
func (r *Registry) Tools() []Tool {
	return slices.Clone(r.ordered)
}

// Infos returns the tool schemas offered to the chat model.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.ordered))
	for _, t := range r.ordered {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tools: info for %s: %w", t.Name(), err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Execute dispatches one call by name. An unknown name yields a failed
// Result rather than an error.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) Result {
	log := logging.FromContext(ctx)

	t, ok := r.byName[name]
	if !ok {
		log.Warn("tool not found", "tool", name)
		return failf(nil, "Tool %s not found", name)
	}

	start := time.Now()
	res := t.Execute(ctx, args)
	attrs := []any{
		"tool", name,
		"success", res.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if res.Success {
		log.Debug("tool executed", attrs...)
	} else {
		log.Warn("tool failed", append(attrs, "error", res.Error)...)
	}
	return res
}
