package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiangye-Song/resume-agent/internal/agent"
	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/ingestion"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

const testPasscode = "open-sesame"

type fakeAsker struct {
	out      agent.Outcome
	question string
}

func (f *fakeAsker) Run(_ context.Context, q string) agent.Outcome {
	f.question = q
	return f.out
}

type fakeAnswerer struct {
	answer string
	ranked []rag.Ranked
}

func (f *fakeAnswerer) Answer(context.Context, string) (string, []rag.Ranked) {
	return f.answer, f.ranked
}

type fakeIndexer struct {
	mu      sync.Mutex
	put     []string
	removed []string
	runs    int
}

func (f *fakeIndexer) Run(context.Context, func(string)) (*ingestion.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return &ingestion.Stats{Total: 2, Upserted: 2, Errors: []ingestion.RecordError{}}, nil
}

func (f *fakeIndexer) Put(_ context.Context, r *records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put = append(f.put, records.VectorID(r))
	return nil
}

func (f *fakeIndexer) Remove(_ context.Context, r *records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, records.VectorID(r))
	return nil
}

type fakePrompt struct{ invalidated int }

func (f *fakePrompt) Get(context.Context) (string, error) { return "", nil }
func (f *fakePrompt) Invalidate()                         { f.invalidated++ }

type fakeCompleter struct {
	content string
	err     error
	req     completion.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req completion.Request) (*schema.Message, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type fixture struct {
	srv     *Server
	store   *store.SQLStore
	asker   *fakeAsker
	rag     *fakeAnswerer
	indexer *fakeIndexer
	prompt  *fakePrompt
	llm     *fakeCompleter
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, pingers ...Pinger) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SetConfig(ctx, store.KeyPanelPasscode, HashPasscode(testPasscode)))

	f := &fixture{
		store:   st,
		asker:   &fakeAsker{out: agent.Outcome{Answer: "agent answer", ToolsUsed: []string{"filter_records"}, Stop: agent.StopAnswer}},
		rag:     &fakeAnswerer{answer: "rag answer"},
		indexer: &fakeIndexer{},
		prompt:  &fakePrompt{},
		llm:     &fakeCompleter{},
		reg:     prometheus.NewRegistry(),
	}
	f.srv, err = New(Deps{
		Agent:     f.asker,
		RAG:       f.rag,
		Store:     st,
		Indexer:   f.indexer,
		Prompt:    f.prompt,
		Completer: f.llm,
	}, &Config{
		Logger:          logging.Discard(),
		Pingers:         pingers,
		RateLimit:       1000,
		RateBurst:       1000,
		MetricsRegistry: f.reg,
		MetricsGatherer: f.reg,
	})
	require.NoError(t, err)
	t.Cleanup(f.srv.stopRL)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testPasscode)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, nil)
	assert.Error(t, err)
	_, err = New(Deps{Agent: &fakeAsker{}}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestReady(t *testing.T) {
	cases := []struct {
		name    string
		pingers []Pinger
		code    int
		ready   bool
	}{
		{"no pingers", nil, http.StatusOK, true},
		{"all healthy", []Pinger{&fakePinger{name: "record_store"}, &fakePinger{name: "vector_index"}}, http.StatusOK, true},
		{"one failing", []Pinger{&fakePinger{name: "record_store"}, &fakePinger{name: "vector_index", err: errors.New("connection refused")}}, http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.pingers...)
			w := f.do(t, http.MethodGet, "/api/ready", "", false)
			require.Equal(t, tc.code, w.Code, w.Body.String())

			var resp readyResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.ready, resp.Ready)
			assert.Len(t, resp.Checks, len(tc.pingers))
			for _, c := range resp.Checks {
				if c.Name == "vector_index" && !tc.ready {
					assert.False(t, c.OK)
					assert.Contains(t, c.Error, "refused")
				}
			}
		})
	}
}

func TestChat_AgentModeDefault(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/chat", `{"question":"Python projects?"}`, false)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "agent answer", body["answer"])
	assert.Equal(t, "agent", body["mode"])
	assert.Equal(t, []any{"filter_records"}, body["tools_used"])
	assert.Equal(t, "Python projects?", f.asker.question)
}

func TestChat_RAGMode(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/chat", `{"question":"hi","use_agent":false}`, false)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "rag answer", body["answer"])
	assert.Equal(t, "rag", body["mode"])
	assert.Equal(t, []any{}, body["tools_used"])
}

func TestChat_BadRequests(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{}`, `{"question":"   "}`, `not-json`} {
		w := f.do(t, http.MethodPost, "/api/chat", body, false)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	w := f.do(t, http.MethodPost, "/api/chat", `{}`, false)
	assert.Equal(t, "question is required", decode(t, w)["error"])
}

func TestChat_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	f.asker.out.Stop = agent.StopCeiling
	f.do(t, http.MethodPost, "/api/chat", `{"question":"q"}`, false)

	mfs, err := f.reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "resume_agent_chat_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["mode"] == "agent" && labels["outcome"] == "ceiling" {
				assert.Equal(t, float64(1), m.GetCounter().GetValue())
				found = true
			}
		}
	}
	assert.True(t, found, "chat counter not recorded")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/health", "", false)
	w := f.do(t, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `resume_agent_http_requests_total{code="200",handler="health",method="GET"} 1`)
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/admin", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodPost, "/api/admin", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin", nil)
	req.Header.Set("Authorization", "bearer "+testPasscode)
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["authenticated"])
}

func TestAdminAuth_PasscodeUnset(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.DB().Exec(`DELETE FROM config`)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/admin", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"Bearer abc":      "abc",
		"BEARER  abc ":    "abc",
		"Basic abc":       "",
		"Bearer":          "",
		"Token abc extra": "",
	}
	for hdr, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		assert.Equal(t, want, bearerToken(req), "header %q", hdr)
	}
}

func TestHashPasscode(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashPasscode("abc"))
}

func TestAdminRecords_CRUD(t *testing.T) {
	f := newFixture(t)

	create := `{"id":"project:agent","type":"project","title":"Resume Agent","summary":"An agent.",
		"tags":["Go","AI"],"facts":"Built in Go\n\nShips tools","detail_site":"https://example.com",
		"additional_url":[{"label":"repo","url":"https://git.example.com"}],"start_date":"2025-08-01"}`
	w := f.do(t, http.MethodPost, "/api/admin/records", create, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"project:agent"}, f.indexer.put)

	w = f.do(t, http.MethodPost, "/api/admin/records", create, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/admin/records/project:agent", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode(t, w)["record"].(map[string]any)
	assert.Equal(t, "An agent.", rec["summary"])
	assert.Equal(t, []any{"Built in Go", "Ships tools"}, rec["facts"])
	assert.EqualValues(t, 3, rec["priority"])

	w = f.do(t, http.MethodPut, "/api/admin/records/project:agent",
		`{"type":"project","title":"Resume Agent v2","priority":2}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, err := f.store.Get(context.Background(), "project:agent")
	require.NoError(t, err)
	assert.Equal(t, "Resume Agent v2", got.Title)
	assert.Equal(t, 2, got.Priority)

	w = f.do(t, http.MethodGet, "/api/admin/records", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = f.do(t, http.MethodDelete, "/api/admin/records/project:agent", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"project:agent"}, f.indexer.removed)

	w = f.do(t, http.MethodDelete, "/api/admin/records/project:agent", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRecords_Validation(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"type":"project","title":"No id"}`,
		`{"id":"x","type":"hobby","title":"Bad type"}`,
		`{"id":"x","type":"project"}`,
		`{"id":"x","type":"project","title":"t","start_date":"2024-02-30"}`,
		`{"id":"x","type":"project","title":"t","start_date":"2024-02-01","end_date":"2023-01-01"}`,
	} {
		w := f.do(t, http.MethodPost, "/api/admin/records", body, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, f.indexer.put)
}

func TestAdminRecords_TypeChangeMovesVectorEntry(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/admin/records", `{"id":"coffee","type":"fact","title":"Likes coffee"}`, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPut, "/api/admin/records/coffee", `{"type":"project","title":"Coffee bot"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"fact:coffee"}, f.indexer.removed)
	assert.Equal(t, []string{"fact:coffee", "project:coffee"}, f.indexer.put)
}

func TestAdminReindex(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/admin/reindex", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["upserted"])
	assert.Equal(t, 1, f.indexer.runs)
}

func TestAdminGenerateFacts(t *testing.T) {
	f := newFixture(t)
	f.llm.content = "# Facts\n• Built an agent in Go\n- Served 1k users\n\n* Won a prize\nPlain line"

	w := f.do(t, http.MethodPost, "/api/admin/generate-facts", `{"summary":"Long summary."}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"Built an agent in Go", "Served 1k users", "Won a prize", "Plain line"}, decode(t, w)["facts"])

	require.NotNil(t, f.llm.req.Temperature)
	assert.InDelta(t, 0.3, *f.llm.req.Temperature, 1e-6)
	assert.Contains(t, f.llm.req.Messages[1].Content, "Long summary.")

	w = f.do(t, http.MethodPost, "/api/admin/generate-facts", `{"summary":""}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.llm.err = errors.New("upstream down")
	w = f.do(t, http.MethodPost, "/api/admin/generate-facts", `{"summary":"x"}`, true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAdminSystemPrompt(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/admin/system-prompt", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["default"])

	w = f.do(t, http.MethodPut, "/api/admin/system-prompt", `{"prompt":"Be brief."}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.prompt.invalidated)

	got, err := f.store.GetConfig(context.Background(), store.KeySystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", got)

	w = f.do(t, http.MethodPut, "/api/admin/system-prompt", `{"prompt":" "}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanFacts(t *testing.T) {
	assert.Equal(t, []string{}, cleanFacts("\n# heading\n  \n"))
	assert.Equal(t, []string{"a", "b"}, cleanFacts("‣ a\n⁃b"))
}
