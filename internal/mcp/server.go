package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
)

const (
	// ServerName is the MCP server name
	ServerName = "classindex-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.classindex/indices"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	backend *Backend
}

// NewServer creates a new MCP server instance storing its index under dbPath
func NewServer(dbPath string) (*Server, error) {
	return NewServerWithOptions(dbPath, BackendOptions{EnumerateStrings: true})
}

// NewServerWithOptions creates a server with explicit backend options
func NewServerWithOptions(dbPath string, opts BackendOptions) (*Server, error) {
	backend, err := OpenBackend(dbPath, opts)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:     mcpServer,
		backend: backend,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.backend.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close releases the backend without serving
func (s *Server) Close() error {
	return s.backend.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexClassesTool(), s.handleIndexClasses)
	s.mcp.AddTool(findReferencesTool(), s.handleFindReferences)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
