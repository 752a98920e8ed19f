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

// DateTool retrieves records within date ranges, sorted by start date. It is
// the only correct tool for "most recent", "latest", "oldest" and "in <year>"
// questions.
type DateTool struct {
	// store runs the range query.
	store store.RecordStore
}

// dateInput is the JSON input schema for DateTool.
type dateInput struct {
	RecordType      string   `json:"record_type"`
	StartDateAfter  string   `json:"start_date_after"`
	StartDateBefore string   `json:"start_date_before"`
	EndDateAfter    string   `json:"end_date_after"`
	EndDateBefore   string   `json:"end_date_before"`
	SortOrder       string   `json:"sort_order"`
	Limit           *flexInt `json:"limit"`
}

// NewDateTool constructs a DateTool over the record store.
func NewDateTool(s store.RecordStore) *DateTool {
	return &DateTool{store: s}
}

// Name returns the tool name registered with the agent.
func (t *DateTool) Name() string { return NameByDate }

// Info returns the eino tool metadata including the JSON input schema.
func (t *DateTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	date := func(desc string) *schema.ParameterInfo {
		return &schema.ParameterInfo{Type: schema.String, Desc: desc + " (YYYY-MM-DD)."}
	}
	return &schema.ToolInfo{
		Name: NameByDate,
		Desc: "Retrieves records filtered by date ranges and sorted by start date. " +
			"Use it for temporal questions such as 'most recent project', 'latest job', 'oldest course' or 'projects in 2024'. " +
			"DESC returns newest first, ASC oldest first; ties are broken by priority.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"record_type": {
				Type: schema.String,
				Desc: "Type of record to return. Omit to include all types.",
				Enum: records.TypeStrings(),
			},
			"start_date_after":  date("Records that started on or after this date"),
			"start_date_before": date("Records that started on or before this date"),
			"end_date_after":    date("Records that ended on or after this date"),
			"end_date_before":   date("Records that ended on or before this date"),
			"sort_order": {
				Type: schema.String,
				Desc: "DESC for newest first (default), ASC for oldest first.",
				Enum: []string{string(store.SortDesc), string(store.SortAsc)},
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of results, 1 to 50. Default 10.",
			},
		}),
	}, nil
}

// InvokableRun executes the tool given a JSON-encoded input string.
func (t *DateTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return invoke(ctx, t, argumentsInJSON)
}

// Execute runs the date query.
func (t *DateTool) Execute(ctx context.Context, args json.RawMessage) Result {
	empty := []records.Record{}

	var in dateInput
	if err := decodeArgs(args, &in); err != nil {
		return failf(empty, "Date query failed: %v", err)
	}

	q, err := in.query()
	if err != nil {
		return failf(empty, "Date query failed: %v", err)
	}

	rs, err := t.store.RecordsByDate(ctx, q)
	if err != nil {
		return failf(empty, "Date query failed: %v", err)
	}

	return succeed(publicRecords(rs), map[string]any{
		"record_type":   nullable(string(q.RecordType)),
		"sort_order":    string(q.Order),
		"results_count": len(rs),
		"filters_applied": map[string]any{
			"start_date_after":  nullable(in.StartDateAfter),
			"start_date_before": nullable(in.StartDateBefore),
			"end_date_after":    nullable(in.EndDateAfter),
			"end_date_before":   nullable(in.EndDateBefore),
		},
	})
}

// query validates the input and converts it to a store query.
func (in *dateInput) query() (store.DateQuery, error) {
	var (
		q   store.DateQuery
		err error
	)
	if q.RecordType, err = recordType(in.RecordType); err != nil {
		return q, err
	}
	if q.StartAfter, err = optionalDate("start_date_after", in.StartDateAfter); err != nil {
		return q, err
	}
	if q.StartBefore, err = optionalDate("start_date_before", in.StartDateBefore); err != nil {
		return q, err
	}
	if q.EndAfter, err = optionalDate("end_date_after", in.EndDateAfter); err != nil {
		return q, err
	}
	if q.EndBefore, err = optionalDate("end_date_before", in.EndDateBefore); err != nil {
		return q, err
	}

	q.Order = store.SortDesc
	if in.SortOrder != "" {
		q.Order = store.SortOrder(strings.ToUpper(strings.TrimSpace(in.SortOrder)))
		if !q.Order.Valid() {
			return q, fmt.Errorf("sort_order must be DESC or ASC, got %q", in.SortOrder)
		}
	}

	if q.Limit, err = intArg("limit", in.Limit, 10, 1, 50); err != nil {
		return q, err
	}
	return q, nil
}
