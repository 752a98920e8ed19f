package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

func openStore(t *testing.T, recs ...records.Record) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	for _, r := range recs {
		require.NoError(t, s.Upsert(ctx, r), "seed %s", r.ID)
	}
	return s
}

func day(s string) *records.Date {
	d, err := records.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func fixtures() []records.Record {
	return []records.Record{
		{ID: "project:agent", Type: records.TypeProject, Title: "Resume Agent", Summary: "long text",
			Tags: []string{"Python", "AI"}, StartDate: day("2025-08-01"), Priority: 3,
			DetailSite: []records.Link{{Label: "site", URL: "https://example.com/agent"}}},
		{ID: "project:shop", Type: records.TypeProject, Title: "Shop Front",
			Tags: []string{"React"}, StartDate: day("2024-03-10"), EndDate: day("2024-09-01"), Priority: 2},
		{ID: "project:scraper", Type: records.TypeProject, Title: "Scraper",
			Tags: []string{"Python"}, StartDate: day("2024-03-10"), EndDate: day("2024-04-01"), Priority: 3},
		{ID: "education:uni", Type: records.TypeEducation, Title: "BSc Computer Science",
			Tags: []string{"Python", "Algorithms"}, StartDate: day("2019-02-01"), EndDate: day("2022-12-01"), Priority: 3},
	}
}

func run(t *testing.T, tl Tool, args string) (Result, map[string]any) {
	t.Helper()
	res := tl.Execute(context.Background(), json.RawMessage(args))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.JSON()), &decoded))
	return res, decoded
}

func resultIDs(t *testing.T, res Result) []string {
	t.Helper()
	rs, ok := res.Data.([]records.Record)
	require.True(t, ok, "data is %T", res.Data)
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestDateTool_MostRecentProject(t *testing.T) {
	tl := NewDateTool(openStore(t, fixtures()...))

	res, decoded := run(t, tl, `{"record_type":"project","sort_order":"DESC","limit":1}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"project:agent"}, resultIDs(t, res))

	rec := decoded["data"].([]any)[0].(map[string]any)
	assert.Nil(t, rec["end_date"])
	assert.NotContains(t, rec, "summary")
	assert.Equal(t, []any{}, rec["facts"])
	assert.Equal(t, []any{}, rec["additional_url"])

	meta := decoded["metadata"].(map[string]any)
	assert.Equal(t, "DESC", meta["sort_order"])
	assert.EqualValues(t, 1, meta["results_count"])
}

func TestDateTool_RangeAndOrder(t *testing.T) {
	tl := NewDateTool(openStore(t, fixtures()...))

	res, _ := run(t, tl, `{"start_date_after":"2024-01-01","start_date_before":"2024-12-31","sort_order":"asc"}`)
	require.True(t, res.Success, res.Error)
	// Same start date: priority 3 first.
	assert.Equal(t, []string{"project:scraper", "project:shop"}, resultIDs(t, res))
}

func TestDateTool_Validation(t *testing.T) {
	tl := NewDateTool(openStore(t))
	cases := map[string]string{
		"bad date":   `{"start_date_after":"2024-13-40"}`,
		"bad order":  `{"sort_order":"sideways"}`,
		"limit high": `{"limit":51}`,
		"limit zero": `{"limit":0}`,
		"bad type":   `{"record_type":"hobby"}`,
		"bad json":   `{"limit":`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			res, decoded := run(t, tl, args)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, "Date query failed")
			assert.Equal(t, []any{}, decoded["data"])
		})
	}
}

func TestDateTool_LenientNumbers(t *testing.T) {
	tl := NewDateTool(openStore(t, fixtures()...))
	for _, args := range []string{`{"limit":"2"}`, `{"limit":2.0}`} {
		res, _ := run(t, tl, args)
		require.True(t, res.Success, res.Error)
		assert.Len(t, resultIDs(t, res), 2)
	}
}

func TestFilterTool_AnyTag(t *testing.T) {
	tl := NewFilterTool(openStore(t, fixtures()...))

	res, decoded := run(t, tl, `{"tags":["Python"],"tags_match_all":false}`)
	require.True(t, res.Success, res.Error)
	got := resultIDs(t, res)
	assert.ElementsMatch(t, []string{"project:agent", "project:scraper", "education:uni"}, got)
	assert.NotContains(t, got, "project:shop")

	meta := decoded["metadata"].(map[string]any)
	assert.Equal(t, "1-3", meta["priority_range"])
	assert.Equal(t, false, meta["tags_match_all"])
}

func TestFilterTool_AllTags(t *testing.T) {
	tl := NewFilterTool(openStore(t, fixtures()...))

	res, _ := run(t, tl, `{"tags":["Python","AI"],"tags_match_all":true}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"project:agent"}, resultIDs(t, res))
}

func TestFilterTool_PriorityRange(t *testing.T) {
	tl := NewFilterTool(openStore(t, fixtures()...))

	res, decoded := run(t, tl, `{"record_type":"project","priority_min":2,"priority_max":2}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"project:shop"}, resultIDs(t, res))
	assert.Equal(t, "2-2", decoded["metadata"].(map[string]any)["priority_range"])

	res, _ = run(t, tl, `{"priority_min":3,"priority_max":1}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "priority_min")

	res, _ = run(t, tl, `{"priority_min":0}`)
	assert.False(t, res.Success)
}

func TestDetailTool(t *testing.T) {
	tl := NewDetailTool(openStore(t, fixtures()...))

	res, decoded := run(t, tl, `{"record_id":"project:agent"}`)
	require.True(t, res.Success, res.Error)
	data := decoded["data"].(map[string]any)
	assert.Equal(t, "Resume Agent", data["title"])
	assert.NotContains(t, data, "summary")
	meta := decoded["metadata"].(map[string]any)
	assert.Equal(t, true, meta["has_detail_site"])
	assert.Equal(t, false, meta["has_additional_urls"])

	res, _ = run(t, tl, `{"record_id":"project:missing"}`)
	assert.False(t, res.Success)
	assert.Equal(t, "Record not found: project:missing", res.Error)

	res, _ = run(t, tl, `{}`)
	assert.False(t, res.Success)
}

func TestStatsTool_TagsDistribution(t *testing.T) {
	tl := NewStatsTool(openStore(t,
		records.Record{ID: "fact:a", Type: records.TypeFact, Title: "A", Tags: []string{"A"}},
		records.Record{ID: "fact:ab", Type: records.TypeFact, Title: "AB", Tags: []string{"A", "B"}},
		records.Record{ID: "fact:c", Type: records.TypeFact, Title: "C", Tags: []string{"C"}},
	))

	res, _ := run(t, tl, `{"stat_type":"tags_distribution","top_n":2}`)
	require.True(t, res.Success, res.Error)
	data := res.Data.(map[string]any)
	tags := data["tags"].([]store.TagCount)
	require.Len(t, tags, 2)
	assert.Equal(t, store.TagCount{Tag: "A", Count: 2}, tags[0])
	assert.Equal(t, 1, tags[1].Count)
	assert.Contains(t, []string{"B", "C"}, tags[1].Tag)
}

func TestStatsTool_Variants(t *testing.T) {
	tl := NewStatsTool(openStore(t, fixtures()...))

	res, _ := run(t, tl, `{"stat_type":"count","record_type":"project"}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"count": 3}, res.Data)

	res, _ = run(t, tl, `{"stat_type":"timeline","start_year":2024}`)
	require.True(t, res.Success, res.Error)
	years := res.Data.(map[string]any)["timeline"].([]store.YearCount)
	require.Len(t, years, 2)
	assert.Equal(t, 2025, years[0].Year)
	assert.Equal(t, 2024, years[1].Year)
	assert.Equal(t, 2, years[1].Count)

	res, _ = run(t, tl, `{"stat_type":"types_distribution"}`)
	require.True(t, res.Success, res.Error)
	types := res.Data.(map[string]any)["types"].([]store.TypeCount)
	assert.Equal(t, store.TypeCount{Type: "project", Count: 3}, types[0])
}

func TestStatsTool_TopNOnlyChecksRankedVariants(t *testing.T) {
	tl := NewStatsTool(openStore(t, fixtures()...))

	res, _ := run(t, tl, `{"stat_type":"count","top_n":100}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"count": 4}, res.Data)

	res, _ = run(t, tl, `{"stat_type":"types_distribution","top_n":0}`)
	require.True(t, res.Success, res.Error)

	for _, st := range []string{"tags_distribution", "timeline"} {
		res, _ = run(t, tl, `{"stat_type":"`+st+`","top_n":100}`)
		assert.False(t, res.Success, st)
		assert.Contains(t, res.Error, "top_n", st)
	}
}

func TestStatsTool_UnknownStatType(t *testing.T) {
	tl := NewStatsTool(openStore(t))
	res, _ := run(t, tl, `{"stat_type":"median"}`)
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown stat_type: median", res.Error)
}

type stubRetriever struct {
	docs   []rag.Document
	err    error
	filter rag.Filter
	topK   int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, topK int, f rag.Filter) ([]rag.Document, error) {
	s.topK, s.filter = topK, f
	return s.docs, s.err
}

func TestSearchTool(t *testing.T) {
	rec := fixtures()[0]
	r := &stubRetriever{docs: []rag.Document{{
		ID:       records.VectorID(&rec),
		Content:  records.EnrichedText(&rec),
		Metadata: records.Metadata(&rec),
		Score:    0.8,
	}}}
	tl := NewSearchTool(r)

	res, decoded := run(t, tl, `{"query":"agents","domain":"project","top_k":3}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, r.topK)
	assert.Equal(t, rag.Filter{"type": "project"}, r.filter)

	hit := decoded["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "project:agent", hit["id"])
	assert.InDelta(t, 0.8, hit["score"], 1e-6)
	assert.NotContains(t, hit, "summary")

	_, _ = run(t, tl, `{"query":"agents"}`)
	assert.Nil(t, r.filter)
	assert.Equal(t, 5, r.topK)
}

func TestSearchTool_Failures(t *testing.T) {
	tl := NewSearchTool(&stubRetriever{err: errors.New("connection refused")})

	res, decoded := run(t, tl, `{"query":"x"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "RAG search failed")
	assert.Equal(t, []any{}, decoded["data"])

	res, _ = run(t, tl, `{"query":"x","top_k":21}`)
	assert.False(t, res.Success)

	res, _ = run(t, tl, `{"query":"x","domain":"hobby"}`)
	assert.False(t, res.Success)
}

func TestRegistry(t *testing.T) {
	reg, err := Default(openStore(t, fixtures()...), &stubRetriever{})
	require.NoError(t, err)

	infos, err := reg.Infos(context.Background())
	require.NoError(t, err)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.Equal(t, Names, names)

	res := reg.Execute(context.Background(), "delete_everything", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Tool delete_everything not found", res.Error)

	res = reg.Execute(context.Background(), NameStats, json.RawMessage(`{"stat_type":"count"}`))
	assert.True(t, res.Success)
}

func TestRegistry_RejectsIncompleteSet(t *testing.T) {
	s := openStore(t)
	_, err := NewRegistry(NewDateTool(s))
	assert.ErrorContains(t, err, "missing tool")

	_, err = NewRegistry(NewDateTool(s), NewDateTool(s))
	assert.ErrorContains(t, err, "duplicate tool")
}

func TestInvokableRun_ReturnsResultJSON(t *testing.T) {
	tl := NewStatsTool(openStore(t))
	out, err := tl.InvokableRun(context.Background(), `{"stat_type":"median"}`)
	require.NoError(t, err)
	var res Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.NotNil(t, res.Metadata)
}
