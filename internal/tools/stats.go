package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// Statistic kinds accepted by StatsTool.
const (
	StatCount             = "count"
	StatTagsDistribution  = "tags_distribution"
	StatTimeline          = "timeline"
	StatTypesDistribution = "types_distribution"
)

var statTypes = []string{StatCount, StatTagsDistribution, StatTimeline, StatTypesDistribution}

// StatsTool answers aggregate questions: how many, which tags most often,
// what happened each year.
type StatsTool struct {
	// store runs the aggregate queries.
	store store.RecordStore
}

// statsInput is the JSON input schema for StatsTool.
type statsInput struct {
	// StatType selects the aggregate.
	StatType string `json:"stat_type"`
	// RecordType restricts to one type.
	RecordType string `json:"record_type"`
	// Tags keeps records carrying any of these tags.
	Tags []string `json:"tags"`
	// StartYear keeps records starting in or after this year.
	StartYear *flexInt `json:"start_year"`
	// EndYear keeps records starting in or before this year.
	EndYear *flexInt `json:"end_year"`
	// TopN truncates distributions and timelines (1–50, default 10).
	TopN *flexInt `json:"top_n"`
}

// NewStatsTool constructs a StatsTool over the record store.
func NewStatsTool(s store.RecordStore) *StatsTool {
	return &StatsTool{store: s}
}

// Name returns the tool name registered with the agent.
func (t *StatsTool) Name() string { return NameStats }

// Info returns the eino tool metadata including the JSON input schema.
func (t *StatsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameStats,
		Desc: "Aggregate statistics over records. stat_type 'count' counts matching records, " +
			"'tags_distribution' lists the most used tags, 'timeline' groups records by start year, " +
			"'types_distribution' counts records per type. Use it for 'how many' and 'most used' questions.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"stat_type": {
				Type:     schema.String,
				Desc:     "Statistic to compute.",
				Enum:     statTypes,
				Required: true,
			},
			"record_type": {
				Type: schema.String,
				Desc: "Restrict to one record type.",
				Enum: records.TypeStrings(),
			},
			"tags": {
				Type:     schema.Array,
				Desc:     "Restrict to records carrying any of these tags.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"start_year": {
				Type: schema.Integer,
				Desc: "Restrict to records starting in or after this year.",
			},
			"end_year": {
				Type: schema.Integer,
				Desc: "Restrict to records starting in or before this year.",
			},
			"top_n": {
				Type: schema.Integer,
				Desc: "Maximum entries for tags_distribution and timeline, 1 to 50. Default 10.",
			},
		}),
	}, nil
}

// InvokableRun executes the tool given a JSON-encoded input string.
func (t *StatsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return invoke(ctx, t, argumentsInJSON)
}

// Execute computes the requested statistic.
func (t *StatsTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var in statsInput
	if err := decodeArgs(args, &in); err != nil {
		return failf(nil, "Statistics query failed: %v", err)
	}
	statType := strings.ToLower(strings.TrimSpace(in.StatType))
	if statType == "" {
		return failf(nil, "Statistics query failed: stat_type is required")
	}

	f, err := in.filter()
	if err != nil {
		return failf(nil, "Statistics query failed: %v", err)
	}
	var data any
	switch statType {
	case StatCount:
		n, err := t.store.Count(ctx, f)
		if err != nil {
			return failf(nil, "Statistics query failed: %v", err)
		}
		data = map[string]any{"count": n}
	case StatTagsDistribution:
		topN, err := intArg("top_n", in.TopN, 10, 1, 50)
		if err != nil {
			return failf(nil, "Statistics query failed: %v", err)
		}
		tags, err := t.store.TagDistribution(ctx, f, topN)
		if err != nil {
			return failf(nil, "Statistics query failed: %v", err)
		}
		data = map[string]any{"tags": tags, "total_unique_tags": len(tags)}
	case StatTimeline:
		topN, err := intArg("top_n", in.TopN, 10, 1, 50)
		if err != nil {
			return failf(nil, "Statistics query failed: %v", err)
		}
		years, err := t.store.Timeline(ctx, f, topN)
		if err != nil {
			return failf(nil, "Statistics query failed: %v", err)
		}
		data = map[string]any{"timeline": years}
	case StatTypesDistribution:
		types, err := t.store.TypeDistribution(ctx, f)
		if err != nil {
			return failf(nil, "Statistics query failed: %v", err)
		}
		data = map[string]any{"types": types}
	default:
		return failf(nil, "Unknown stat_type: %s", in.StatType)
	}

	return succeed(data, map[string]any{
		"stat_type": statType,
		"filters": map[string]any{
			"record_type": nullable(string(f.RecordType)),
			"tags":        f.Tags,
			"start_year":  f.StartYear,
			"end_year":    f.EndYear,
		},
	})
}

// filter validates the pre-filters.
func (in *statsInput) filter() (store.StatsFilter, error) {
	var (
		f   store.StatsFilter
		err error
	)
	if f.RecordType, err = recordType(in.RecordType); err != nil {
		return f, err
	}
	f.Tags = in.Tags
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if in.StartYear != nil {
		y := int(*in.StartYear)
		f.StartYear = &y
	}
	if in.EndYear != nil {
		y := int(*in.EndYear)
		f.EndYear = &y
	}
	if f.StartYear != nil && f.EndYear != nil && *f.StartYear > *f.EndYear {
		return f, fmt.Errorf("start_year %d is after end_year %d", *f.StartYear, *f.EndYear)
	}
	return f, nil
}
