package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

// ConceptSearchTool handles concept_search.
type ConceptSearchTool struct {
	catalog *service.CatalogService
}

func NewConceptSearchTool(catalog *service.CatalogService) *ConceptSearchTool {
	return &ConceptSearchTool{catalog: catalog}
}

func (t *ConceptSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("concept_search",
		mcp.WithDescription("Search the concept catalog by meaning. Returns concepts ranked by similarity."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Term or short phrase to look up"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Max results (default 5)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity between 0 and 1 (default 0.80)"),
		),
	)
}

func (t *ConceptSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	matches, err := t.catalog.FindSimilar(ctx, query,
		intArg(req, "top_k", service.DefaultSearchTopK),
		floatArg(req, "threshold", domain.SameConceptThreshold))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("No concepts found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d concepts:\n\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(&b, "[%d] %s (similarity %.2f, id %s)\n", i+1, m.Concept.Label, m.Similarity, m.Concept.ID)
		if m.Concept.Essence != "" {
			fmt.Fprintf(&b, "    %s\n", m.Concept.Essence)
		}
		if len(m.Concept.Variations) > 0 {
			fmt.Fprintf(&b, "    also: %s\n", strings.Join(m.Concept.Variations, ", "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ConceptGetTool handles concept_get.
type ConceptGetTool struct {
	catalog *service.CatalogService
}

func NewConceptGetTool(catalog *service.CatalogService) *ConceptGetTool {
	return &ConceptGetTool{catalog: catalog}
}

func (t *ConceptGetTool) Definition() mcp.Tool {
	return mcp.NewTool("concept_get",
		mcp.WithDescription("Fetch one concept by id or by exact label."),
		mcp.WithString("id",
			mcp.Description("Concept UUID"),
		),
		mcp.WithString("label",
			mcp.Description("Exact concept label, used when id is empty"),
		),
	)
}

func (t *ConceptGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		c   *domain.Concept
		err error
	)
	switch id, label := req.GetString("id", ""), req.GetString("label", ""); {
	case id != "":
		parsed, perr := uuid.Parse(id)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid id %q", id)), nil
		}
		c, err = t.catalog.GetConcept(ctx, parsed)
	case label != "":
		c, err = t.catalog.GetConceptByLabel(ctx, label)
	default:
		return mcp.NewToolResultError("'id' or 'label' is required"), nil
	}
	if errors.Is(err, service.ErrConceptNotFound) {
		return mcp.NewToolResultError("concept not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return jsonResult(c), nil
}
