package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

// ToolSource supplies the tools a Server exposes.
type ToolSource interface {
	Tools(ctx context.Context) ([]tool.Tool, error)
}

// Server exposes tools from a ToolSource over MCP. The tool list is
// re-synced after any call to a tool flagged UpdatesSystemPrompt, and the
// server notifies clients that it changed.
type Server struct {
	mcpServer *server.MCPServer
	source    ToolSource
	logger    *slog.Logger
}

// NewServer creates a server named name.
func NewServer(name, version string, source ToolSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		source: source,
		logger: logger,
	}
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Sync replaces the registered tools with the source's current tools.
func (s *Server) Sync(ctx context.Context) error {
	tools, err := s.source.Tools(ctx)
	if err != nil {
		return err
	}
	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, t := range tools {
		st, err := s.serverTool(t)
		if err != nil {
			return err
		}
		serverTools = append(serverTools, st)
	}
	s.mcpServer.SetTools(serverTools...)
	s.logger.DebugContext(ctx, "mcp server tools synced", "tools", tool.Names(tools))
	return nil
}

func (s *Server) serverTool(t tool.Tool) (server.ServerTool, error) {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return server.ServerTool{}, err
	}
	return server.ServerTool{
		Tool: mcp.NewToolWithRawSchema(t.Name, t.Description, schema),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := t.Call(ctx, req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if t.UpdatesSystemPrompt {
				if err := s.Sync(ctx); err != nil {
					s.logger.WarnContext(ctx, "failed to refresh tools", "error", err)
				}
			}
			return mcp.NewToolResultText(out), nil
		},
	}, nil
}

// ServeStdio syncs the tools and serves until in is closed or ctx is done.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
