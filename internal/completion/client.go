// Package completion is the completion client: one request/response call to
// the chat model behind a circuit breaker. The agent orchestrator, the direct
// RAG path and fact generation all call the model through it.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("completion: model temporarily unavailable")

// Request is one completion call.
type Request struct {
	// Messages is the full conversation, system prompt first.
	Messages []*schema.Message
	// Tools are offered to the model with automatic tool choice. Empty means
	// a plain text completion.
	Tools []*schema.ToolInfo
	// Temperature overrides the model default when non-nil.
	Temperature *float32
	// MaxTokens overrides the model default when positive.
	MaxTokens int
}

// Completer is the completion surface consumed by the orchestrator and the
// direct RAG path.
type Completer interface {
	Complete(ctx context.Context, req Request) (*schema.Message, error)
}

// Options tunes the circuit breaker.
type Options struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker (default 5).
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing (default 30s).
	OpenTimeout time.Duration
	// Logger receives state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client implements Completer over an eino tool-calling chat model.
// It is safe for concurrent use.
type Client struct {
	// model is the underlying chat model.
	model model.ToolCallingChatModel
	// breaker stops calls to a failing backend for a cool-down period.
	breaker *gobreaker.CircuitBreaker
}

// New wraps m in a Client.
func New(m model.ToolCallingChatModel, opts Options) *Client {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	threshold := opts.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("completion: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// Cancellation is the caller's decision, not a backend fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	return &Client{model: m, breaker: breaker}
}

// Complete sends req to the model and returns the assistant message, which
// either carries content or one or more tool calls.
func (c *Client) Complete(ctx context.Context, req Request) (*schema.Message, error) {
	log := logging.FromContext(ctx)

	m := c.model
	var opts []model.Option
	if len(req.Tools) > 0 {
		bound, err := c.model.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("completion: bind tools: %w", err)
		}
		m = bound
		opts = append(opts, model.WithToolChoice(schema.ToolChoiceAllowed))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return m.Generate(ctx, req.Messages, opts...)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("completion: generate: %w", err)
	}

	msg, _ := out.(*schema.Message)
	if msg == nil {
		return nil, fmt.Errorf("completion: model returned no message")
	}
	log.Debug("completion: generated",
		slog.Int("messages", len(req.Messages)),
		slog.Int("tools", len(req.Tools)),
		slog.Int("tool_calls", len(msg.ToolCalls)),
		slog.Duration("duration", time.Since(start)),
	)
	return msg, nil
}

// Text is a convenience for plain completions: a system prompt, one user
// message and the returned content.
func Text(ctx context.Context, c Completer, system, user string, temperature float32) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(user))

	resp, err := c.Complete(ctx, Request{Messages: msgs, Temperature: &temperature})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
