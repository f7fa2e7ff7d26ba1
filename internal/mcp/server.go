// Package mcp exposes bookmark search to agents as Model Context Protocol
// tools served over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/XiaoConstantine/bmark"
	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/index"
	"github.com/XiaoConstantine/bmark/pkg/search"
)

const (
	// ServerName is the MCP server name
	ServerName = "bmark"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// Client is the part of *bmark.Client the tools call.
type Client interface {
	Search(ctx context.Context, text string, opts search.Options) (*search.Response, error)
	Filter(ctx context.Context, q string) ([]bookmark.Bookmark, error)
	Sync(ctx context.Context) (index.SyncStats, error)
	Status() bmark.Status
}

// Server wraps the MCP server with the bookmark client.
type Server struct {
	mcp    *server.MCPServer
	client Client
}

// NewServer creates a server with all tools registered.
func NewServer(client Client) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		client: client,
	}
	s.mcp.AddTool(searchBookmarksTool(), s.handleSearch)
	s.mcp.AddTool(findBookmarksTool(), s.handleFind)
	s.mcp.AddTool(indexBookmarksTool(), s.handleIndex)
	s.mcp.AddTool(getStatusTool(), s.handleStatus)
	return s
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
