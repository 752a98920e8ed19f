package completion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel records calls and returns scripted results.
type fakeModel struct {
	mu       sync.Mutex
	reply    *schema.Message
	err      error
	calls    int
	bound    []*schema.ToolInfo
	lastOpts *model.Options
}

func (f *fakeModel) Generate(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastOpts = model.GetCommonOptions(&model.Options{}, opts...)
	return f.reply, f.err
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = tools
	return f, nil
}

func TestComplete_PassesOptions(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: schema.AssistantMessage("hi", nil)}
	c := New(m, Options{})

	temp := float32(0.1)
	tools := []*schema.ToolInfo{{Name: "get_statistics", Desc: "stats"}}
	msg, err := c.Complete(context.Background(), Request{
		Messages:    []*schema.Message{schema.UserMessage("q")},
		Tools:       tools,
		Temperature: &temp,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, tools, m.bound)
	require.NotNil(t, m.lastOpts.Temperature)
	assert.InDelta(t, 0.1, *m.lastOpts.Temperature, 1e-6)
	require.NotNil(t, m.lastOpts.MaxTokens)
	assert.Equal(t, 2000, *m.lastOpts.MaxTokens)
}

func TestComplete_WrapsError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	c := New(&fakeModel{err: boom}, Options{})
	_, err := c.Complete(context.Background(), Request{Messages: []*schema.Message{schema.UserMessage("q")}})
	require.ErrorIs(t, err, boom)
}

func TestComplete_BreakerOpens(t *testing.T) {
	t.Parallel()

	m := &fakeModel{err: errors.New("down")}
	c := New(m, Options{FailureThreshold: 2, OpenTimeout: time.Minute})
	req := Request{Messages: []*schema.Message{schema.UserMessage("q")}}

	for range 2 {
		_, err := c.Complete(context.Background(), req)
		require.Error(t, err)
	}
	_, err := c.Complete(context.Background(), req)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, m.calls, "open breaker must not reach the model")
}

func TestComplete_CancellationDoesNotTrip(t *testing.T) {
	t.Parallel()

	m := &fakeModel{err: context.Canceled}
	c := New(m, Options{FailureThreshold: 1, OpenTimeout: time.Minute})
	req := Request{Messages: []*schema.Message{schema.UserMessage("q")}}

	for range 3 {
		_, err := c.Complete(context.Background(), req)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 3, m.calls)
}

func TestText(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: schema.AssistantMessage("• fact one", nil)}
	out, err := Text(context.Background(), New(m, Options{}), "sys", "user", 0.3)
	require.NoError(t, err)
	assert.Equal(t, "• fact one", out)
	assert.InDelta(t, 0.3, *m.lastOpts.Temperature, 1e-6)
}
