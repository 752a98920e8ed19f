package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiangye-Song/resume-agent/internal/records"
)

// openTestStore opens an in-memory SQLite store for use in tests.
func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", 0, 0)
	require.NoError(t, err, "open in-memory store")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(s string) *records.Date {
	d, err := records.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func intPtr(n int) *int { return &n }

// seed inserts records and fails the test on error.
func seed(t *testing.T, s *SQLStore, recs ...records.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.Upsert(context.Background(), r), "seed %s", r.ID)
	}
}

func fixtures() []records.Record {
	return []records.Record{
		{ID: "project:agent", Type: records.TypeProject, Title: "Resume Agent", Summary: "agentic",
			Tags: []string{"Python", "AI"}, StartDate: date("2025-08-01"), Priority: 3},
		{ID: "project:shop", Type: records.TypeProject, Title: "Shop Front",
			Tags: []string{"React"}, StartDate: date("2024-03-10"), EndDate: date("2024-09-01"), Priority: 2},
		{ID: "project:scraper", Type: records.TypeProject, Title: "Scraper",
			Tags: []string{"Python"}, StartDate: date("2024-03-10"), EndDate: date("2024-04-01"), Priority: 3},
		{ID: "project:draft", Type: records.TypeProject, Title: "Undated Draft",
			Tags: []string{"Go"}, Priority: 1},
		{ID: "education:uni", Type: records.TypeEducation, Title: "BSc Computer Science",
			Tags: []string{"Python", "Algorithms"}, StartDate: date("2019-02-01"), EndDate: date("2022-12-01"), Priority: 3},
		{ID: "experience:acme", Type: records.TypeExperience, Title: "Engineer at Acme",
			Tags: []string{"Go", "AI"}, StartDate: date("2023-01-15"), Priority: 0},
	}
}

func ids(recs []records.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func Test_Store_UpsertGetDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, fixtures()...)

	got, err := s.Get(ctx, "project:shop")
	require.NoError(t, err)
	assert.Equal(t, "Shop Front", got.Title)
	assert.Equal(t, []string{"React"}, got.Tags)
	assert.Equal(t, []string{}, got.Facts)
	assert.Equal(t, []records.Link{}, got.AdditionalURL)
	assert.Equal(t, "2024-09-01", got.EndDate.String())

	updated := *got
	updated.Title = "Shop Front v2"
	updated.Facts = []string{"Handled 10k orders"}
	updated.AdditionalURL = []records.Link{{Label: "Repo", URL: "https://example.com/shop"}}
	require.NoError(t, s.Upsert(ctx, updated))

	got, err = s.Get(ctx, "project:shop")
	require.NoError(t, err)
	assert.Equal(t, "Shop Front v2", got.Title)
	assert.Equal(t, []string{"Handled 10k orders"}, got.Facts)
	assert.Equal(t, []records.Link{{Label: "Repo", URL: "https://example.com/shop"}}, got.AdditionalURL)

	require.NoError(t, s.Delete(ctx, "project:shop"))
	_, err = s.Get(ctx, "project:shop")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "project:shop"), ErrNotFound)
}

func Test_Store_UpsertRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.Upsert(context.Background(), records.Record{ID: "x", Type: "hobby", Title: "Chess"})
	assert.Error(t, err)
}

func Test_Store_RecordsByDate_RangeAndOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, fixtures()...)

	got, err := s.RecordsByDate(ctx, DateQuery{
		StartAfter:  date("2023-01-01"),
		StartBefore: date("2024-12-31"),
		Order:       SortDesc,
		Limit:       10,
	})
	require.NoError(t, err)
	// Same start date ties break on priority: scraper (3) before shop (2).
	assert.Equal(t, []string{"project:scraper", "project:shop", "experience:acme"}, ids(got))
	for _, r := range got {
		require.NotNil(t, r.StartDate)
		assert.False(t, r.StartDate.Before(*date("2023-01-01")))
		assert.False(t, date("2024-12-31").Before(*r.StartDate))
	}

	got, err = s.RecordsByDate(ctx, DateQuery{Order: SortAsc, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "education:uni", got[0].ID)
	assert.Equal(t, "project:draft", got[len(got)-1].ID, "undated records sort last")
}

func Test_Store_RecordsByDate_MostRecentProject(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	seed(t, s, fixtures()...)

	got, err := s.RecordsByDate(context.Background(), DateQuery{
		RecordType: records.TypeProject,
		Order:      SortDesc,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "project:agent", got[0].ID)
	assert.Nil(t, got[0].EndDate)
}

func Test_Store_RecordsByDate_EndBounds(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	seed(t, s, fixtures()...)

	got, err := s.RecordsByDate(context.Background(), DateQuery{
		EndAfter:  date("2024-05-01"),
		EndBefore: date("2024-12-31"),
		Order:     SortDesc,
		Limit:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"project:shop"}, ids(got))
}

func Test_Store_FilterRecords_TagModes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, fixtures()...)

	tests := []struct {
		name string
		q    FilterQuery
		want []string
	}{
		{
			name: "any python",
			q:    FilterQuery{Tags: []string{"Python"}, Limit: 20},
			want: []string{"project:agent", "project:scraper", "education:uni"},
		},
		{
			name: "any python or react, projects only",
			q:    FilterQuery{RecordType: records.TypeProject, Tags: []string{"Python", "React"}, Limit: 20},
			want: []string{"project:agent", "project:scraper", "project:shop"},
		},
		{
			name: "all python and ai",
			q:    FilterQuery{Tags: []string{"Python", "AI"}, MatchAll: true, Limit: 20},
			want: []string{"project:agent"},
		},
		{
			name: "all with duplicate query tag",
			q:    FilterQuery{Tags: []string{"Go", "Go"}, MatchAll: true, Limit: 20},
			want: []string{"project:draft", "experience:acme"},
		},
		{
			name: "priority range",
			q:    FilterQuery{PriorityMin: intPtr(1), PriorityMax: intPtr(2), Limit: 20},
			want: []string{"project:shop", "project:draft"},
		},
		{
			name: "limit",
			q:    FilterQuery{Limit: 2},
			want: []string{"project:agent", "project:scraper"},
		},
	}
	for _, tt := range tests {
		got, err := s.FilterRecords(ctx, tt.q)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, ids(got), tt.name)
	}
}

func Test_Store_TagDistribution(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s,
		records.Record{ID: "fact:a", Type: records.TypeFact, Title: "A", Tags: []string{"A"}},
		records.Record{ID: "fact:ab", Type: records.TypeFact, Title: "AB", Tags: []string{"A", "B"}},
		records.Record{ID: "fact:c", Type: records.TypeFact, Title: "C", Tags: []string{"C"}},
	)

	got, err := s.TagDistribution(ctx, StatsFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TagCount{Tag: "A", Count: 2}, got[0])
	assert.Equal(t, 1, got[1].Count)
	assert.Contains(t, []string{"B", "C"}, got[1].Tag)
}

func Test_Store_TimelineAndTypes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s, fixtures()...)

	timeline, err := s.Timeline(ctx, StatsFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, timeline, 4)
	assert.Equal(t, YearCount{Year: 2025, Count: 1, Titles: []string{"Resume Agent"}}, timeline[0])
	assert.Equal(t, 2024, timeline[1].Year)
	assert.Equal(t, 2, timeline[1].Count)
	assert.Equal(t, []string{"Scraper", "Shop Front"}, timeline[1].Titles)
	assert.Equal(t, 2019, timeline[3].Year)

	truncated, err := s.Timeline(ctx, StatsFilter{StartYear: intPtr(2023)}, 2)
	require.NoError(t, err)
	assert.Len(t, truncated, 2)
	assert.Equal(t, 2025, truncated[0].Year)
	assert.Equal(t, 2024, truncated[1].Year)

	types, err := s.TypeDistribution(ctx, StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, TypeCount{Type: "project", Count: 4}, types[0])
	assert.Len(t, types, 3)

	n, err := s.Count(ctx, StatsFilter{RecordType: records.TypeProject, Tags: []string{"Python"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, StatsFilter{StartYear: intPtr(2024), EndYear: intPtr(2024)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func Test_Store_List(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	seed(t, s, fixtures()...)

	got, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, records.MaxPriority, got[0].Priority)
	assert.Equal(t, "experience:acme", got[len(got)-1].ID)
}

func Test_Store_Config(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetConfig(ctx, KeySystemPrompt)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetConfig(ctx, KeySystemPrompt, "be brief"))
	require.NoError(t, s.SetConfig(ctx, KeySystemPrompt, "be thorough"))

	v, err := s.GetConfig(ctx, KeySystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "be thorough", v)
}

func Test_Store_ContextCancelled(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := s.List(ctx)
	assert.Error(t, err)
}

func Test_StringList_Scan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  any
		want []string
	}{
		{"nil", nil, []string{}},
		{"json", `["a","b"]`, []string{"a", "b"}},
		{"json null", []byte(`null`), []string{}},
		{"pg array", []byte(`{Python,"Machine Learning"}`), []string{"Python", "Machine Learning"}},
		{"pg empty", []byte(`{}`), []string{}},
	}
	for _, tt := range tests {
		var l stringList
		require.NoError(t, l.Scan(tt.src), tt.name)
		assert.Equal(t, tt.want, []string(l), tt.name)
	}
}

func Test_Builder_Placeholders(t *testing.T) {
	t.Parallel()

	pg := newBuilder(postgresDialect)
	pg.and("records.type = " + pg.arg("project"))
	pg.and(postgresDialect.tagsAny(pg, []string{"Go"}))
	assert.Equal(t, " WHERE records.type = $1 AND records.tags && $2::text[]", pg.clause())
	assert.Len(t, pg.args, 2)

	lite := newBuilder(sqliteDialect)
	pred := sqliteDialect.tagsAll(lite, []string{"Go", "AI", "Go"})
	assert.Contains(t, pred, "IN (?, ?)) = ?")
	assert.Equal(t, []any{"Go", "AI", 2}, lite.args)
}
