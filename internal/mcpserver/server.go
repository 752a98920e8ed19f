// Package mcpserver exposes the resume tools over the Model Context Protocol
// so desktop assistants can query the record store directly. Each tool keeps
// the schema it offers the agent; results are returned as the same JSON
// envelope the agent sees.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/tools"
	"github.com/Jiangye-Song/resume-agent/internal/version"
)

// DefaultName is the implementation name announced to clients.
const DefaultName = "resume-agent"

// Toolset is the tool surface served. *tools.Registry satisfies it.
type Toolset interface {
	Infos(ctx context.Context) ([]*schema.ToolInfo, error)
	Execute(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name (default DefaultName).
	Name string
	// Version is the implementation version (default version.Version).
	Version string
	// Logger receives tool call logs. It must not write to stdout, which
	// carries the protocol.
	Logger *slog.Logger
}

// Server serves a Toolset over MCP.
type Server struct {
	mcp   *mcp.Server
	tools Toolset
	log   *slog.Logger
	names []string
}

// New builds a server and registers every tool in ts.
func New(ctx context.Context, ts Toolset, cfg Config) (*Server, error) {
	if ts == nil {
		return nil, fmt.Errorf("mcpserver: toolset is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = version.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	s := &Server{
		mcp:   mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		tools: ts,
		log:   cfg.Logger,
	}

	infos, err := ts.Infos(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: tool infos: %w", err)
	}
	for _, info := range infos {
		if err := s.register(info); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Names lists the registered tool names in registration order.
func (s *Server) Names() []string {
	return append([]string(nil), s.names...)
}

// MCP returns the underlying protocol server, for custom transports.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves on stdin/stdout until ctx is cancelled or the client hangs up.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting", slog.Int("tools", len(s.names)))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

func (s *Server) register(info *schema.ToolInfo) error {
	inputSchema, err := objectSchema(info)
	if err != nil {
		return fmt.Errorf("mcpserver: schema for %s: %w", info.Name, err)
	}
	name := info.Name
	s.mcp.AddTool(&mcp.Tool{
		Name:        name,
		Description: info.Desc,
		InputSchema: inputSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.call(ctx, name, req.Params.Arguments), nil
	})
	s.names = append(s.names, name)
	return nil
}

// call runs one tool. Tool failures are reported in-band with IsError set so
// the client model can read the message and retry.
func (s *Server) call(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	ctx = logging.WithLogger(ctx, s.log)
	start := time.Now()
	res := s.tools.Execute(ctx, name, args)
	s.log.Info("mcp tool call",
		slog.String("tool", name),
		slog.Bool("success", res.Success),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.JSON()}},
		IsError: !res.Success,
	}
}

// objectSchema converts a tool's parameter definition into the JSON object
// schema MCP requires. Tools without parameters get an empty object schema.
func objectSchema(info *schema.ToolInfo) (map[string]any, error) {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	if info.ParamsOneOf == nil {
		return out, nil
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(js)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	out["type"] = "object"
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out, nil
}
