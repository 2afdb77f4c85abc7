package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

func newComponents(t *testing.T) *app.Components {
	t.Helper()
	dir := t.TempDir()
	c, err := app.Build(context.Background(), app.Options{
		LLMProvider:       llm.ProviderMock,
		EmbeddingProvider: "local",
		StoreBackend:      app.BackendSQLite,
		SQLitePath:        filepath.Join(dir, "catalog.db"),
		AgentConfigDir:    filepath.Join("..", "..", "config", "agents"),
		EventsDir:         filepath.Join(dir, "events"),
		StructuredLogDir:  filepath.Join(dir, "structured"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNew_RegistersTools(t *testing.T) {
	c := newComponents(t)
	require.NotNil(t, New(c))

	names := map[string]bool{}
	for _, tl := range Tools(c) {
		def := tl.Definition()
		names[def.Name] = true
	}
	for _, want := range []string{"concept_search", "concept_get", "list_sessions", "session_events", "session_summary", "dialogue_turn"} {
		assert.True(t, names[want], want)
	}

	def := NewSessionEventsTool(c.Bus).Definition()
	assert.Contains(t, def.InputSchema.Required, "session_id")
}

func TestConceptTools(t *testing.T) {
	c := newComponents(t)
	ctx := context.Background()
	saved, err := c.Catalog.SaveConcept(ctx, "cognitive load", "mental effort", nil)
	require.NoError(t, err)

	search := NewConceptSearchTool(c.Catalog)
	res, err := search.Handle(ctx, makeReq(map[string]any{"query": "Cognitive Load"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(res), "cognitive load")

	res, err = search.Handle(ctx, makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	get := NewConceptGetTool(c.Catalog)
	res, err = get.Handle(ctx, makeReq(map[string]any{"id": saved.ConceptID.String()}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var got domain.Concept
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.Equal(t, saved.ConceptID, got.ID)

	res, err = get.Handle(ctx, makeReq(map[string]any{"label": "cognitive load"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = get.Handle(ctx, makeReq(map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSessionTools(t *testing.T) {
	c := newComponents(t)
	ctx := context.Background()

	turn := NewTurnTool(c.Engine)
	res, err := turn.Handle(ctx, makeReq(map[string]any{"session_id": "m-1", "input": "remote work lowers focus"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "next_step=explore")

	res, err = NewListSessionsTool(c.Bus).Handle(ctx, makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(res), "m-1")

	res, err = NewSessionEventsTool(c.Bus).Handle(ctx, makeReq(map[string]any{
		"session_id": "m-1",
		"type":       string(domain.EventSessionStarted),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 1, strings.Count(resultText(res), string(domain.EventSessionStarted)))

	res, err = NewSessionEventsTool(c.Bus).Handle(ctx, makeReq(map[string]any{"session_id": "../etc"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = NewSessionSummaryTool(c.Bus).Handle(ctx, makeReq(map[string]any{"session_id": "m-1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(res), "remote work lowers focus")

	res, err = NewSessionSummaryTool(c.Bus).Handle(ctx, makeReq(map[string]any{"session_id": "unknown"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = turn.Handle(ctx, makeReq(map[string]any{"session_id": "m-1", "input": " "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
