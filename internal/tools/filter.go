package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"

	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// FilterTool selects records by type, tags and priority. Lexical tag matching
// beats embedding similarity for technology questions.
type FilterTool struct {
	// store runs the predicate query.
	store store.RecordStore
}

// filterInput is the JSON input schema for FilterTool.
type filterInput struct {
	// RecordType restricts to one type.
	RecordType string `json:"record_type"`
	// Tags to match, case-sensitive.
	Tags []string `json:"tags"`
	// TagsMatchAll switches from ANY to ALL matching.
	TagsMatchAll flexBool `json:"tags_match_all"`
	// PriorityMin is the inclusive lower bound (1–3).
	PriorityMin *flexInt `json:"priority_min"`
	// PriorityMax is the inclusive upper bound (1–3).
	PriorityMax *flexInt `json:"priority_max"`
	// Limit caps results (1–50, default 20).
	Limit *flexInt `json:"limit"`
}

// NewFilterTool constructs a FilterTool over the record store.
func NewFilterTool(s store.RecordStore) *FilterTool {
	return &FilterTool{store: s}
}

// Name returns the tool name registered with the agent.
func (t *FilterTool) Name() string { return NameFilter }

// Info returns the eino tool metadata including the JSON input schema.
func (t *FilterTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameFilter,
		Desc: "Filters records by type, tags and priority. Use it for technology or category questions " +
			"such as 'Python projects' or 'React and TypeScript work'. Tags are matched exactly. " +
			"Results are ordered by priority, then most recent first.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"record_type": {
				Type: schema.String,
				Desc: "Type of record to return. Omit to include all types.",
				Enum: records.TypeStrings(),
			},
			"tags": {
				Type:     schema.Array,
				Desc:     "Tags to match, for example [\"Python\", \"AI\"].",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"tags_match_all": {
				Type: schema.Boolean,
				Desc: "true requires every tag; false (default) matches any tag.",
			},
			"priority_min": {
				Type: schema.Integer,
				Desc: "Minimum priority, 1 to 3.",
			},
			"priority_max": {
				Type: schema.Integer,
				Desc: "Maximum priority, 1 to 3.",
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of results, 1 to 50. Default 20.",
			},
		}),
	}, nil
}

// InvokableRun executes the tool given a JSON-encoded input string.
func (t *FilterTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return invoke(ctx, t, argumentsInJSON)
}

// Execute runs the filter query.
func (t *FilterTool) Execute(ctx context.Context, args json.RawMessage) Result {
	empty := []records.Record{}

	var in filterInput
	if err := decodeArgs(args, &in); err != nil {
		return failf(empty, "Filter query failed: %v", err)
	}

	q, err := in.query()
	if err != nil {
		return failf(empty, "Filter query failed: %v", err)
	}

	rs, err := t.store.FilterRecords(ctx, q)
	if err != nil {
		return failf(empty, "Filter query failed: %v", err)
	}

	pmin, pmax := records.MinPriority+1, records.MaxPriority
	if q.PriorityMin != nil {
		pmin = *q.PriorityMin
	}
	if q.PriorityMax != nil {
		pmax = *q.PriorityMax
	}
	return succeed(publicRecords(rs), map[string]any{
		"record_type":    nullable(string(q.RecordType)),
		"tags":           q.Tags,
		"tags_match_all": q.MatchAll,
		"priority_range": fmt.Sprintf("%d-%d", pmin, pmax),
		"results_count":  len(rs),
	})
}

// query validates the input and converts it to a store query.
func (in *filterInput) query() (store.FilterQuery, error) {
	var (
		q   store.FilterQuery
		err error
	)
	if q.RecordType, err = recordType(in.RecordType); err != nil {
		return q, err
	}
	q.Tags = lo.Uniq(lo.Compact(lo.Map(in.Tags, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	q.MatchAll = bool(in.TagsMatchAll)

	if in.PriorityMin != nil {
		p, err := intArg("priority_min", in.PriorityMin, 0, 1, 3)
		if err != nil {
			return q, err
		}
		q.PriorityMin = &p
	}
	if in.PriorityMax != nil {
		p, err := intArg("priority_max", in.PriorityMax, 0, 1, 3)
		if err != nil {
			return q, err
		}
		q.PriorityMax = &p
	}
	if q.PriorityMin != nil && q.PriorityMax != nil && *q.PriorityMin > *q.PriorityMax {
		return q, fmt.Errorf("priority_min %d is greater than priority_max %d", *q.PriorityMin, *q.PriorityMax)
	}

	if q.Limit, err = intArg("limit", in.Limit, 20, 1, 50); err != nil {
		return q, err
	}
	return q, nil
}
