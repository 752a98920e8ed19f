package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/records"
)

// SearchTool performs semantic vector search, optionally restricted to one
// record type.
type SearchTool struct {
	// index runs the similarity search.
	index rag.Retriever
}

// searchInput is the JSON input schema for SearchTool.
type searchInput struct {
	// Query is the natural-language search text.
	Query string `json:"query"`
	// Domain is a record type or "all".
	Domain string `json:"domain"`
	// TopK bounds the result count (1–20, default 5).
	TopK *flexInt `json:"top_k"`
}

// SearchHit is one search result: the public record plus its similarity.
type SearchHit struct {
	records.Record
	// Score is the raw similarity score.
	Score float32 `json:"score"`
}

// NewSearchTool constructs a SearchTool over the given retriever.
func NewSearchTool(index rag.Retriever) *SearchTool {
	return &SearchTool{index: index}
}

// Name returns the tool name registered with the agent.
func (t *SearchTool) Name() string { return NameSearch }

// Info returns the eino tool metadata including the JSON input schema.
func (t *SearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameSearch,
		Desc: "Semantic vector search within one domain (project, education, experience, fact) or all of them. " +
			"Use it for conceptual and qualitative questions where wording varies. " +
			"Returns the top_k most similar records with a similarity score. " +
			"Never use it for recency questions: similarity knows nothing about dates.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Natural language search query.",
				Required: true,
			},
			"domain": {
				Type: schema.String,
				Desc: "Domain to search within; 'all' searches every domain. Default 'all'.",
				Enum: append(records.TypeStrings(), domainAll),
			},
			"top_k": {
				Type: schema.Integer,
				Desc: "Number of results to return, 1 to 20. Default 5.",
			},
		}),
	}, nil
}

// InvokableRun executes the tool given a JSON-encoded input string.
func (t *SearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return invoke(ctx, t, argumentsInJSON)
}

// Execute runs the search.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var in searchInput
	if err := decodeArgs(args, &in); err != nil {
		return failf([]SearchHit{}, "RAG search failed: %v", err)
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return failf([]SearchHit{}, "RAG search failed: query is required")
	}
	domain := strings.ToLower(strings.TrimSpace(in.Domain))
	if domain == "" {
		domain = domainAll
	}
	var filter rag.Filter
	if domain != domainAll {
		if !records.Type(domain).Valid() {
			return failf([]SearchHit{}, "RAG search failed: unknown domain %q", in.Domain)
		}
		filter = rag.Filter{records.MetaType: domain}
	}
	topK, err := intArg("top_k", in.TopK, 5, 1, 20)
	if err != nil {
		return failf([]SearchHit{}, "RAG search failed: %v", err)
	}

	docs, err := t.index.Retrieve(ctx, query, topK, filter)
	if err != nil {
		return failf([]SearchHit{}, "RAG search failed: %v", err)
	}

	hits := make([]SearchHit, len(docs))
	for i, d := range docs {
		hits[i] = SearchHit{Record: records.FromMetadata(d.Metadata, d.ID).Public(), Score: d.Score}
	}
	return succeed(hits, map[string]any{
		"query":         query,
		"domain":        domain,
		"results_count": len(hits),
	})
}
