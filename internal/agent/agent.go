// Package agent is the orchestrator: it lets the chat model pick query tools,
// runs the requested calls, feeds the results back and repeats until the
// model answers in plain text or a step ceiling is hit.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Jiangye-Song/resume-agent/internal/budget"
	"github.com/Jiangye-Song/resume-agent/internal/completion"
	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/tools"
)

// Fixed user-facing answers.
const (
	MsgEmpty   = "I apologize, but I couldn't generate a response."
	MsgCeiling = "I apologize, but I couldn't complete your request within the allowed steps. " +
		"Please try rephrasing your question or breaking it into smaller parts."
	MsgTimeout  = "I apologize, but your request timed out before I could finish. Please try again."
	errorPrefix = "I apologize, but I encountered an error: "
)

const (
	// DefaultMaxIterations is the step ceiling when Config leaves it unset.
	DefaultMaxIterations = 5
	// DefaultTemperature keeps tool selection close to deterministic.
	DefaultTemperature float32 = 0.1
	// DefaultMaxTokens caps each completion.
	DefaultMaxTokens = 2000
)

// Stop says why a run ended.
type Stop string

const (
	// StopAnswer means the model answered without requesting tools.
	StopAnswer Stop = "answer"
	// StopCeiling means MaxIterations turns all requested tools.
	StopCeiling Stop = "ceiling"
	// StopTimeout means the run deadline passed.
	StopTimeout Stop = "timeout"
	// StopError means the completion call failed.
	StopError Stop = "error"
)

// Toolbox is the tool surface the orchestrator dispatches through.
// *tools.Registry satisfies it.
type Toolbox interface {
	// Infos returns the schemas offered to the model.
	Infos(ctx context.Context) ([]*schema.ToolInfo, error)
	// Get resolves a tool by name.
	Get(name string) (tools.Tool, bool)
	// Execute runs one call; unknown names yield a failed Result.
	Execute(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// boundTool exposes one Toolbox entry to the eino tools node, so every call
// still goes through Toolbox.Execute.
type boundTool struct {
	info *schema.ToolInfo
	box  Toolbox
}

func (b boundTool) Info(context.Context) (*schema.ToolInfo, error) { return b.info, nil }

func (b boundTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return b.box.Execute(ctx, b.info.Name, json.RawMessage(argumentsInJSON)).JSON(), nil
}

// Config holds the dependencies and limits of an Agent.
type Config struct {
	// Completer makes the decision calls.
	Completer completion.Completer
	// Tools is the fixed tool set.
	Tools Toolbox
	// MaxIterations is the step ceiling. Defaults to DefaultMaxIterations.
	MaxIterations int
	// Timeout bounds a whole run when positive.
	Timeout time.Duration
	// Temperature for every decision call. Defaults to DefaultTemperature.
	Temperature *float32
	// MaxTokens per completion. Defaults to DefaultMaxTokens.
	MaxTokens int
	// MaxContextTokens is the estimated input size above which a warning is
	// logged. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Agent runs the tool-calling loop. It holds no per-query state, so one Agent
// may serve concurrent queries.
type Agent struct {
	// completer makes the decision calls.
	completer completion.Completer
	// tools resolves tool names.
	tools Toolbox
	// infos are the schemas offered on every decision call.
	infos []*schema.ToolInfo
	// node runs one turn's tool calls concurrently, results in call order.
	node *compose.ToolsNode
	// maxIterations is the step ceiling.
	maxIterations int
	// timeout bounds a run when positive.
	timeout time.Duration
	// temperature for decision calls.
	temperature float32
	// maxTokens per completion.
	maxTokens int
	// maxContextTokens triggers the oversize warning.
	maxContextTokens int
}

// Outcome is the result of one run.
type Outcome struct {
	// Answer is the final text shown to the user.
	Answer string `json:"answer"`
	// ToolsUsed lists executed tool names in call order.
	ToolsUsed []string `json:"tools_used"`
	// Iterations counts decision calls made.
	Iterations int `json:"iterations"`
	// Stop is the terminal reason.
	Stop Stop `json:"stop"`
	// Log is the final transcript, system prompt excluded.
	Log Log `json:"-"`
}

// New validates cfg and constructs an Agent.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("agent: Completer must not be nil")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("agent: Tools must not be nil")
	}
	a := &Agent{
		completer:        cfg.Completer,
		tools:            cfg.Tools,
		maxIterations:    cfg.MaxIterations,
		timeout:          cfg.Timeout,
		temperature:      DefaultTemperature,
		maxTokens:        cfg.MaxTokens,
		maxContextTokens: cfg.MaxContextTokens,
	}
	if a.maxIterations <= 0 {
		a.maxIterations = DefaultMaxIterations
	}
	if cfg.Temperature != nil {
		a.temperature = *cfg.Temperature
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	if a.maxContextTokens <= 0 {
		a.maxContextTokens = budget.DefaultMaxContextTokens
	}

	infos, err := cfg.Tools.Infos(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to list tools: %w", err)
	}
	bound := make([]tool.BaseTool, len(infos))
	for i, info := range infos {
		bound[i] = boundTool{info: info, box: cfg.Tools}
	}
	node, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools: bound,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			return cfg.Tools.Execute(ctx, name, json.RawMessage(input)).JSON(), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return executableArgs(ctx, name, arguments), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create tools node: %w", err)
	}
	a.infos, a.node = infos, node
	return a, nil
}

// Run answers query. It never returns an error: every failure ends the run
// with a user-facing answer and a Stop reason.
func (a *Agent) Run(ctx context.Context, query string) Outcome {
	log := logging.FromContext(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	out := Outcome{ToolsUsed: []string{}}
	conv := NewLog(schema.UserMessage(query))
	finish := func(answer string, stop Stop) Outcome {
		out.Answer, out.Stop, out.Log = answer, stop, conv
		log.Info("agent: finished",
			slog.String("stop", string(stop)),
			slog.Int("iterations", out.Iterations),
			slog.Any("tools_used", out.ToolsUsed),
		)
		return out
	}

	log.Info("agent: started", slog.Int("max_iterations", a.maxIterations), slog.Int("query_len", len(query)))

	for out.Iterations < a.maxIterations {
		if ctx.Err() != nil {
			return finish(a.interrupted(ctx))
		}
		out.Iterations++

		msgs := append([]*schema.Message{schema.SystemMessage(systemPrompt)}, conv.Messages()...)
		if n, over := budget.Exceeds(msgs, a.infos, a.maxContextTokens); over {
			log.Warn("budget: conversation exceeds context estimate",
				slog.Int("estimated_tokens", n),
				slog.Int("max_tokens", a.maxContextTokens),
			)
		}

		temp := a.temperature
		msg, err := a.completer.Complete(ctx, completion.Request{
			Messages:    msgs,
			Tools:       a.infos,
			Temperature: &temp,
			MaxTokens:   a.maxTokens,
		})
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return finish(MsgTimeout, StopTimeout)
			}
			log.Error("agent: completion failed", slog.Int("iteration", out.Iterations), slog.Any("error", err))
			return finish(errorPrefix+err.Error(), StopError)
		}

		if len(msg.ToolCalls) == 0 {
			conv = conv.Append(schema.AssistantMessage(msg.Content, nil))
			answer := strings.TrimSpace(msg.Content)
			if answer == "" {
				answer = MsgEmpty
			}
			return finish(answer, StopAnswer)
		}

		calls := identifyCalls(msg.ToolCalls, out.Iterations)
		log.Debug("agent: tool calls requested", slog.Int("iteration", out.Iterations), slog.Int("count", len(calls)))

		request := schema.AssistantMessage(msg.Content, calls)
		turns := append([]*schema.Message{request}, a.execute(ctx, request)...)
		for _, c := range calls {
			if _, ok := a.tools.Get(c.Function.Name); ok {
				out.ToolsUsed = append(out.ToolsUsed, c.Function.Name)
			}
		}
		conv = conv.Append(turns...)
	}

	if ctx.Err() != nil {
		return finish(a.interrupted(ctx))
	}
	log.Warn("agent: iteration ceiling reached", slog.Int("max_iterations", a.maxIterations))
	return finish(MsgCeiling, StopCeiling)
}

// interrupted maps a done context to its terminal answer.
func (a *Agent) interrupted(ctx context.Context) (string, Stop) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return MsgTimeout, StopTimeout
	}
	return errorPrefix + ctx.Err().Error(), StopError
}

// execute runs the tool calls of request through the tools node. A node
// failure becomes one failed result per call so the turn stays well formed.
func (a *Agent) execute(ctx context.Context, request *schema.Message) []*schema.Message {
	msgs, err := a.node.Invoke(ctx, request)
	if err == nil && len(msgs) == len(request.ToolCalls) {
		return msgs
	}
	if err == nil {
		err = fmt.Errorf("got %d results for %d calls", len(msgs), len(request.ToolCalls))
	}
	logging.FromContext(ctx).Error("agent: tool execution failed", slog.Any("error", err))
	failed := tools.Result{Error: "Tool execution failed: " + err.Error()}.JSON()
	out := make([]*schema.Message, len(request.ToolCalls))
	for i, c := range request.ToolCalls {
		out[i] = schema.ToolMessage(failed, c.ID)
	}
	return out
}

// identifyCalls copies the requested calls, giving every call an id and a
// type. Arguments are kept as the model sent them.
func identifyCalls(in []schema.ToolCall, iteration int) []schema.ToolCall {
	out := make([]schema.ToolCall, len(in))
	for i, c := range in {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", iteration, i)
		}
		if c.Type == "" {
			c.Type = "function"
		}
		out[i] = c
	}
	return out
}

// executableArgs replaces empty or unparsable arguments with an empty object.
func executableArgs(ctx context.Context, name, arguments string) string {
	args := strings.TrimSpace(arguments)
	if args != "" && json.Valid([]byte(args)) {
		return args
	}
	if args != "" {
		logging.FromContext(ctx).Warn("agent: malformed tool arguments, using {}", slog.String("tool", name))
	}
	return "{}"
}
