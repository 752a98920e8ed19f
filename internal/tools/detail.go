package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// DetailTool fetches one record by its exact id, typically to expand a
// reference returned by another tool.
type DetailTool struct {
	// store runs the point lookup.
	store store.RecordStore
}

type detailInput struct {
	RecordID string `json:"record_id"`
}

// NewDetailTool constructs a DetailTool over the record store.
func NewDetailTool(s store.RecordStore) *DetailTool {
	return &DetailTool{store: s}
}

// Name returns the tool name registered with the agent.
func (t *DetailTool) Name() string { return NameDetail }

// Info returns the eino tool metadata including the JSON input schema.
func (t *DetailTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameDetail,
		Desc: "Returns every field of one record by its exact id, including detail_site and additional_url links. " +
			"Use it after another tool has returned a record id you need to expand.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"record_id": {
				Type:     schema.String,
				Desc:     "Exact record id, for example 'project:resume-agent'.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun executes the tool given a JSON-encoded input string.
func (t *DetailTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return invoke(ctx, t, argumentsInJSON)
}

// Execute runs the lookup.
func (t *DetailTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var in detailInput
	if err := decodeArgs(args, &in); err != nil {
		return failf(nil, "Failed to fetch record details: %v", err)
	}
	id := strings.TrimSpace(in.RecordID)
	if id == "" {
		return failf(nil, "Failed to fetch record details: record_id is required")
	}

	r, err := t.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return failf(nil, "Record not found: %s", id)
	}
	if err != nil {
		return failf(nil, "Failed to fetch record details: %v", err)
	}

	out := r.Public()
	return succeed(out, map[string]any{
		"record_id":           id,
		"has_detail_site":     len(out.DetailSite) > 0,
		"has_additional_urls": len(out.AdditionalURL) > 0,
	})
}
