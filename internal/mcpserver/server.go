// Package mcpserver exposes the concept catalog and the session event history
// as MCP tools so an editor assistant can read what a dialogue produced.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/buildconfig"
)

const serverName = "paper-agent"

// Tool is one MCP tool: its schema and the handler that serves it.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New builds an MCP server over a booted engine.
func New(c *app.Components) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		buildconfig.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(c) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Tools lists every tool New registers.
func Tools(c *app.Components) []Tool {
	return []Tool{
		NewConceptSearchTool(c.Catalog),
		NewConceptGetTool(c.Catalog),
		NewListSessionsTool(c.Bus),
		NewSessionEventsTool(c.Bus),
		NewSessionSummaryTool(c.Bus),
		NewTurnTool(c.Engine),
	}
}

const instructions = `paper-agent helps a researcher turn a vague observation into a testable research question.
Use concept_search before introducing a new term to reuse the catalog's vocabulary.
Use list_sessions, session_summary and session_events to inspect past dialogues.
Use dialogue_turn to continue a dialogue on the user's behalf.`
