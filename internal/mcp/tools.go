package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/query"
	"github.com/XiaoConstantine/bmark/pkg/search"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
	ErrorCodeInvalidQuery    = -32005 // Boolean query does not parse
	ErrorCodeSemanticOffline = -32006 // Semantic search is disabled
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	text, opts, err := searchParams(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Search(ctx, text, opts)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatJSON(searchResponse(resp))), nil
}

func (s *Server) handleFind(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	q := strings.TrimSpace(getStringDefault(args, "query", ""))
	if q == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	}

	found, err := s.client.Filter(ctx, q)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count":     len(found),
		"bookmarks": bookmarkList(found),
	})), nil
}

func (s *Server) handleIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.client.Sync(ctx)
	if err != nil {
		if errors.Is(err, semantic.ErrDisabled) {
			return nil, newMCPError(ErrorCodeSemanticOffline, "semantic search is disabled", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"total":       stats.Total,
		"embedded":    stats.Embedded,
		"unchanged":   stats.Unchanged,
		"removed":     stats.Removed,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
		"saved":       stats.Saved,
		"duration_ms": stats.Duration.Milliseconds(),
	})), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.client.Status()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"bookmarks": st.Bookmarks,
		"semantic": map[string]interface{}{
			"enabled":     st.Semantic.Enabled,
			"initialized": st.Semantic.Initialized,
			"model":       st.Semantic.Model,
			"entries":     st.Semantic.Entries,
			"path":        st.Semantic.Path,
		},
		"server": map[string]interface{}{
			"endpoint":         st.Endpoint,
			"running":          st.ServerRunning,
			"model_downloaded": st.ModelDownloaded,
		},
	})), nil
}

// searchParams validates search_bookmarks arguments.
func searchParams(args map[string]interface{}) (string, search.Options, error) {
	opts := search.DefaultOptions()

	text := strings.TrimSpace(getStringDefault(args, "query", ""))
	if text == "" {
		return "", opts, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	opts.Limit = getIntDefault(args, "limit", opts.Limit)
	if opts.Limit < 1 || opts.Limit > 100 {
		return "", opts, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": opts.Limit,
		})
	}

	mode, err := search.ParseMode(getStringDefault(args, "mode", string(search.ModeHybrid)))
	if err != nil {
		return "", opts, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"allowed": []string{"hybrid", "semantic", "lexical"},
		})
	}
	opts.Mode = mode

	opts.SemanticWeight = getFloatDefault(args, "semantic_weight", opts.SemanticWeight)
	if opts.SemanticWeight < 0 || opts.SemanticWeight > 1 {
		return "", opts, newMCPError(ErrorCodeInvalidParams, "semantic_weight must be between 0 and 1", nil)
	}
	opts.Filter = getStringDefault(args, "filter", "")
	return text, opts, nil
}

func searchError(err error) error {
	switch {
	case errors.Is(err, semantic.ErrDisabled):
		return newMCPError(ErrorCodeSemanticOffline, "semantic search is disabled; use mode lexical", nil)
	case errors.Is(err, query.ErrDanglingPrefix), errors.Is(err, query.ErrUnexpectedToken),
		errors.Is(err, query.ErrTrailingTokens), errors.Is(err, query.ErrUnexpectedEnd):
		return newMCPError(ErrorCodeInvalidQuery, "invalid boolean query", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
		"error": err.Error(),
	})
}

func searchResponse(resp *search.Response) map[string]interface{} {
	hits := make([]map[string]interface{}, len(resp.Hits))
	for i, h := range resp.Hits {
		hit := bookmarkFields(h.Bookmark)
		hit["score"] = h.Score
		if h.Similarity != 0 {
			hit["similarity"] = h.Similarity
		}
		hits[i] = hit
	}
	out := map[string]interface{}{
		"mode":       resp.Mode,
		"semantic":   resp.Semantic,
		"candidates": resp.Candidates,
		"results":    hits,
	}
	if resp.SemanticErr != nil {
		out["semantic_error"] = resp.SemanticErr.Error()
	}
	return out
}

func bookmarkList(bookmarks []bookmark.Bookmark) []map[string]interface{} {
	out := make([]map[string]interface{}, len(bookmarks))
	for i, b := range bookmarks {
		out[i] = bookmarkFields(b)
	}
	return out
}

func bookmarkFields(b bookmark.Bookmark) map[string]interface{} {
	return map[string]interface{}{
		"id":          b.ID,
		"title":       b.Title,
		"description": b.Description,
		"tags":        b.Tags,
		"url":         b.URL,
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
