package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func searchBookmarksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_bookmarks",
		Description: "Rank saved bookmarks against a natural language or keyword query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (meaning + keywords), semantic or lexical",
					"enum":        []string{"hybrid", "semantic", "lexical"},
					"default":     "hybrid",
				},
				"filter": map[string]interface{}{
					"type":        "string",
					"description": "Boolean query narrowing candidates first, e.g. '#lang/go and not #archived'",
				},
				"semantic_weight": map[string]interface{}{
					"type":        "number",
					"description": "Weight of the semantic ranking in hybrid mode (0-1)",
					"minimum":     0.0,
					"maximum":     1.0,
					"default":     0.6,
				},
			},
			Required: []string{"query"},
		},
	}
}

func findBookmarksTool() mcp.Tool {
	return mcp.Tool{
		Name: "find_bookmarks",
		Description: "List bookmarks matching a boolean query. Words, \"phrases\", #tag, .title, " +
			">description and :url terms combine with and, or, not and parentheses",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Boolean filter query",
				},
			},
			Required: []string{"query"},
		},
	}
}

func indexBookmarksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_bookmarks",
		Description: "Embed new and edited bookmarks so semantic search sees them",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the semantic index and embedding server state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
