package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/rag"
	"github.com/Jiangye-Song/resume-agent/internal/records"
	"github.com/Jiangye-Song/resume-agent/internal/store"
	"github.com/Jiangye-Song/resume-agent/internal/tools"
)

// scriptedCompleter replays a fixed list of responses and records requests.
type scriptedCompleter struct {
	mu       sync.Mutex
	steps    []func(req completion.Request) (*schema.Message, error)
	requests []completion.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req completion.Request) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.steps) {
		return s.steps[len(s.steps)-1](req)
	}
	return s.steps[i](req)
}

func callTools(calls ...schema.ToolCall) func(completion.Request) (*schema.Message, error) {
	return func(completion.Request) (*schema.Message, error) {
		return schema.AssistantMessage("", calls), nil
	}
}

func answer(text string) func(completion.Request) (*schema.Message, error) {
	return func(completion.Request) (*schema.Message, error) {
		return schema.AssistantMessage(text, nil), nil
	}
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

type nopRetriever struct{}

func (nopRetriever) Retrieve(context.Context, string, int, rag.Filter) ([]rag.Document, error) {
	return nil, nil
}

func day(s string) *records.Date {
	d, err := records.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func newRegistry(t *testing.T, recs ...records.Record) *tools.Registry {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	for _, r := range recs {
		require.NoError(t, s.Upsert(ctx, r))
	}
	reg, err := tools.Default(s, nopRetriever{})
	require.NoError(t, err)
	return reg
}

func newAgent(t *testing.T, c completion.Completer, tb Toolbox, mut ...func(*Config)) *Agent {
	t.Helper()
	cfg := Config{Completer: c, Tools: tb}
	for _, m := range mut {
		m(&cfg)
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return a
}

func toolResults(l Log) []tools.Result {
	var out []tools.Result
	for _, m := range l.Messages() {
		if m.Role != schema.Tool {
			continue
		}
		var r tools.Result
		if err := json.Unmarshal([]byte(m.Content), &r); err == nil {
			out = append(out, r)
		}
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, Config{})
	assert.Error(t, err)
	_, err = New(ctx, Config{Completer: &scriptedCompleter{}})
	assert.Error(t, err)
}

func TestRun_DirectAnswer(t *testing.T) {
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){answer("Hello there.")}}
	out := newAgent(t, c, newRegistry(t)).Run(context.Background(), "hi")

	assert.Equal(t, "Hello there.", out.Answer)
	assert.Equal(t, StopAnswer, out.Stop)
	assert.Equal(t, 1, out.Iterations)
	assert.Empty(t, out.ToolsUsed)

	req := c.requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, schema.System, req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[1].Content)
	assert.Len(t, req.Tools, len(tools.Names))
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.1, *req.Temperature, 1e-6)
	assert.Equal(t, 2000, req.MaxTokens)
}

func TestRun_EmptyAnswer(t *testing.T) {
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){answer("  ")}}
	out := newAgent(t, c, newRegistry(t)).Run(context.Background(), "hi")
	assert.Equal(t, MsgEmpty, out.Answer)
}

func TestRun_IterationCeiling(t *testing.T) {
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(call("c1", tools.NameStats, `{"stat_type":"count"}`)),
	}}
	out := newAgent(t, c, newRegistry(t), func(cfg *Config) { cfg.MaxIterations = 3 }).
		Run(context.Background(), "loop forever")

	assert.Equal(t, MsgCeiling, out.Answer)
	assert.Equal(t, StopCeiling, out.Stop)
	assert.Equal(t, 3, out.Iterations)
	assert.Len(t, c.requests, 3)
	assert.Equal(t, []string{tools.NameStats, tools.NameStats, tools.NameStats}, out.ToolsUsed)
}

func TestRun_CompletionError(t *testing.T) {
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		func(completion.Request) (*schema.Message, error) { return nil, errors.New("rate limited") },
	}}
	out := newAgent(t, c, newRegistry(t)).Run(context.Background(), "q")
	assert.Equal(t, StopError, out.Stop)
	assert.Equal(t, "I apologize, but I encountered an error: rate limited", out.Answer)
}

func TestRun_Timeout(t *testing.T) {
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		func(completion.Request) (*schema.Message, error) {
			time.Sleep(30 * time.Millisecond)
			return schema.AssistantMessage("", []schema.ToolCall{call("c1", tools.NameStats, `{"stat_type":"count"}`)}), nil
		},
	}}
	out := newAgent(t, c, newRegistry(t), func(cfg *Config) {
		cfg.Timeout = 10 * time.Millisecond
		cfg.MaxIterations = 10
	}).Run(context.Background(), "q")
	assert.Equal(t, StopTimeout, out.Stop)
	assert.Equal(t, MsgTimeout, out.Answer)
	assert.Equal(t, 1, out.Iterations)
}

func TestRun_DeadlineDuringLastToolTurn(t *testing.T) {
	tb := &recordingToolbox{
		Toolbox: newRegistry(t),
		delay:   func(string) time.Duration { return 40 * time.Millisecond },
	}
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(call("c1", tools.NameStats, `{"stat_type":"count"}`)),
	}}
	out := newAgent(t, c, tb, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.MaxIterations = 1
	}).Run(context.Background(), "q")

	assert.Equal(t, StopTimeout, out.Stop)
	assert.Equal(t, MsgTimeout, out.Answer)
	assert.Equal(t, 1, out.Iterations)
}

// Scenario: "most recent project" resolves through the date tool and the
// record reaches the next completion as context.
func TestRun_MostRecentProject(t *testing.T) {
	reg := newRegistry(t,
		records.Record{ID: "project:agent", Type: records.TypeProject, Title: "Resume Agent", StartDate: day("2025-08-01")},
		records.Record{ID: "project:old", Type: records.TypeProject, Title: "Old Thing", StartDate: day("2021-01-01"), EndDate: day("2021-06-01")},
	)
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(call("c1", tools.NameByDate, `{"record_type":"project","sort_order":"DESC","limit":1}`)),
		answer("Your most recent project is Resume Agent."),
	}}
	out := newAgent(t, c, reg, func(cfg *Config) { cfg.MaxIterations = 5 }).Run(context.Background(), "most recent project")

	assert.Equal(t, StopAnswer, out.Stop)
	assert.Equal(t, []string{tools.NameByDate}, out.ToolsUsed)
	assert.Equal(t, 2, out.Iterations)

	second := c.requests[1].Messages
	last := second[len(second)-1]
	require.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)

	var res struct {
		Success bool             `json:"success"`
		Data    []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(last.Content), &res))
	require.True(t, res.Success)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Resume Agent", res.Data[0]["title"])
	assert.Nil(t, res.Data[0]["end_date"])
}

// Scenario: a tag question resolves through the filter tool in ANY mode.
func TestRun_TagQuestion(t *testing.T) {
	reg := newRegistry(t,
		records.Record{ID: "project:ml", Type: records.TypeProject, Title: "ML", Tags: []string{"Python", "AI"}},
		records.Record{ID: "project:web", Type: records.TypeProject, Title: "Web", Tags: []string{"React"}},
	)
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(call("c1", tools.NameFilter, `{"tags":["Python"],"tags_match_all":false}`)),
		answer("ML uses Python."),
	}}
	out := newAgent(t, c, reg).Run(context.Background(), "Python projects")

	results := toolResults(out.Log)
	require.Len(t, results, 1)
	data, _ := json.Marshal(results[0].Data)
	assert.Contains(t, string(data), `"project:ml"`)
	assert.NotContains(t, string(data), `"project:web"`)
}

// Scenario: tag statistics truncated to two entries, most frequent first.
func TestRun_TagStatistics(t *testing.T) {
	reg := newRegistry(t,
		records.Record{ID: "fact:a", Type: records.TypeFact, Title: "a", Tags: []string{"A"}},
		records.Record{ID: "fact:ab", Type: records.TypeFact, Title: "ab", Tags: []string{"A", "B"}},
		records.Record{ID: "fact:c", Type: records.TypeFact, Title: "c", Tags: []string{"C"}},
	)
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(call("c1", tools.NameStats, `{"stat_type":"tags_distribution","top_n":2}`)),
		answer("A is the most used tag."),
	}}
	out := newAgent(t, c, reg).Run(context.Background(), "most used tags")

	results := toolResults(out.Log)
	require.Len(t, results, 1)
	data := results[0].Data.(map[string]any)
	tags := data["tags"].([]any)
	require.Len(t, tags, 2)
	assert.Equal(t, map[string]any{"tag": "A", "count": float64(2)}, tags[0])
	assert.EqualValues(t, 1, tags[1].(map[string]any)["count"])
}

func TestRun_ToolFailureIsReportedNotFatal(t *testing.T) {
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(
			call("c1", "no_such_tool", `{}`),
			call("c2", tools.NameStats, `{"stat_type":"median"}`),
		),
		answer("Sorry, nothing found."),
	}}
	out := newAgent(t, c, newRegistry(t)).Run(context.Background(), "q")

	assert.Equal(t, StopAnswer, out.Stop)
	assert.Equal(t, []string{tools.NameStats}, out.ToolsUsed)
	results := toolResults(out.Log)
	require.Len(t, results, 2)
	assert.Equal(t, "Tool no_such_tool not found", results[0].Error)
	assert.Equal(t, "Unknown stat_type: median", results[1].Error)
}

func TestRun_MalformedArgumentsRunAsEmpty(t *testing.T) {
	tb := &recordingToolbox{Toolbox: newRegistry(t)}
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(call("", tools.NameByDate, `{"limit": 3`)),
		answer("done"),
	}}
	out := newAgent(t, c, tb).Run(context.Background(), "q")

	assert.Equal(t, StopAnswer, out.Stop)
	require.Len(t, tb.calls, 1)
	assert.Equal(t, "{}", tb.calls[0].args)

	msgs := c.requests[1].Messages
	assistant := msgs[len(msgs)-2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.NotEmpty(t, assistant.ToolCalls[0].ID)
	assert.Equal(t, `{"limit": 3`, assistant.ToolCalls[0].Function.Arguments)
	assert.Equal(t, assistant.ToolCalls[0].ID, msgs[len(msgs)-1].ToolCallID)
}

// recordingToolbox delays tools in reverse order to shuffle completion.
type recordingToolbox struct {
	Toolbox
	mu    sync.Mutex
	calls []struct{ name, args string }
	delay func(name string) time.Duration
}

func (r *recordingToolbox) Execute(ctx context.Context, name string, args json.RawMessage) tools.Result {
	if r.delay != nil {
		time.Sleep(r.delay(name))
	}
	r.mu.Lock()
	r.calls = append(r.calls, struct{ name, args string }{name, string(args)})
	r.mu.Unlock()
	return r.Toolbox.Execute(ctx, name, args)
}

func TestRun_ResultsKeepRequestOrder(t *testing.T) {
	tb := &recordingToolbox{
		Toolbox: newRegistry(t),
		delay: func(name string) time.Duration {
			if name == tools.NameStats {
				return 40 * time.Millisecond
			}
			return 0
		},
	}
	c := &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
		callTools(
			call("first", tools.NameStats, `{"stat_type":"count"}`),
			call("second", tools.NameDetail, `{"record_id":"x"}`),
			call("third", tools.NameFilter, `{}`),
		),
		answer("ok"),
	}}
	_ = newAgent(t, c, tb).Run(context.Background(), "q")

	msgs := c.requests[1].Messages
	require.Len(t, msgs, 6) // system, user, assistant, 3 tool results
	assert.Equal(t, "first", msgs[3].ToolCallID)
	assert.Equal(t, "second", msgs[4].ToolCallID)
	assert.Equal(t, "third", msgs[5].ToolCallID)
	assert.Contains(t, msgs[4].Content, "Record not found: x")
}

func TestRun_Idempotent(t *testing.T) {
	reg := newRegistry(t, records.Record{ID: "project:a", Type: records.TypeProject, Title: "A", StartDate: day("2024-01-01")})
	script := func() *scriptedCompleter {
		return &scriptedCompleter{steps: []func(completion.Request) (*schema.Message, error){
			callTools(call("c1", tools.NameByDate, `{"limit":1}`)),
			callTools(call("c2", tools.NameDetail, `{"record_id":"project:a"}`)),
			answer("A"),
		}}
	}

	var runs [][]string
	for range 2 {
		out := newAgent(t, script(), reg).Run(context.Background(), "latest")
		runs = append(runs, out.ToolsUsed)
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, []string{tools.NameByDate, tools.NameDetail}, runs[0])
}

func TestLog_AppendIsImmutable(t *testing.T) {
	base := NewLog(schema.UserMessage("q"))
	next := base.Append(schema.AssistantMessage("a", nil))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, next.Len())

	msgs := next.Messages()
	msgs[0] = schema.UserMessage("changed")
	assert.Equal(t, "q", next.Messages()[0].Content)
}

func TestSystemPrompt_NamesEveryTool(t *testing.T) {
	for _, name := range tools.Names {
		assert.Contains(t, systemPrompt, name)
	}
	assert.NotContains(t, systemPrompt, "%!")
}

func ExampleOutcome() {
	out := Outcome{Answer: "hi", Stop: StopAnswer, Iterations: 1, ToolsUsed: []string{}}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
	// Output: {"answer":"hi","tools_used":[],"iterations":1,"stop":"answer"}
}
