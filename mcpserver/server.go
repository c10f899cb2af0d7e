// Package mcpserver exposes the tool catalog over the Model Context Protocol
// so other agents can call autodoc's tools directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsdk "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/martinemde/autodoc/agentloop"
)

const serverName = "autodoc"

// Server wraps an mcp-go server whose tools are the actions of a registry.
// Every call goes through the sandbox, so validation, dry runs and hooks
// behave as they do inside the agent loop.
type Server struct {
	mcpServer *mcpsdk.MCPServer
	registry  *agentloop.Registry
	sandbox   *agentloop.Sandbox
	logger    *zap.Logger
}

// New registers one MCP tool per action in registry.
func New(registry *agentloop.Registry, sandbox *agentloop.Sandbox, version string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sandbox == nil {
		sandbox = agentloop.NewSandbox()
	}
	s := &Server{
		registry: registry,
		sandbox:  sandbox,
		logger:   logger,
		mcpServer: mcpsdk.NewMCPServer(
			serverName,
			version,
			mcpsdk.WithToolCapabilities(false),
		),
	}

	for _, action := range registry.List() {
		schema, err := json.Marshal(action.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", action.Name, err)
		}
		s.mcpServer.AddTool(
			mcplib.NewToolWithRawSchema(action.Name, action.Description, schema),
			s.handle(action),
		)
	}
	return s, nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpsdk.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the protocol on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return mcpsdk.ServeStdio(s.mcpServer)
}

func (s *Server) handle(action *agentloop.Action) mcpsdk.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		s.logger.Debug("mcp tool call", zap.String("tool", action.Name), zap.Any("args", args))

		rec := s.sandbox.Execute(ctx, action, args)
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return errorResult(fmt.Sprintf("encode result: %v", err)), nil
		}
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(data)}},
			IsError: rec.Failed(),
		}, nil
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}
