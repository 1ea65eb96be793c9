package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docent-ai/docent/internal/knowledge"
)

// Index is the slice of the knowledge store the MCP tools read.
// *knowledge.Store satisfies it; tests substitute fixed results.
type Index interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Document, error)
	Sources(ctx context.Context) ([]knowledge.SourceCount, error)
}

var _ Index = (*knowledge.Store)(nil)

// Server exposes the documentation index as an MCP tool server.
type Server struct {
	mcpServer *mcp.Server
	index     Index
	logger    *slog.Logger
	name      string
	version   string
}

// Config holds MCP server dependencies.
type Config struct {
	Name    string
	Version string
	Index   Index
	Logger  *slog.Logger
}

// NewServer creates an MCP server with the documentation tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("knowledge index is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		index:   cfg.Index,
		logger:  cfg.Logger,
		name:    cfg.Name,
		version: cfg.Version,
	}

	if err := s.registerDocsTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return s, nil
}

// Run serves MCP requests on the given transport until ctx is cancelled or
// the transport closes. It blocks.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}
