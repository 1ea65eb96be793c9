package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docent-ai/docent/internal/knowledge"
)

// SearchDocsInput defines the input schema for the search_docs tool.
type SearchDocsInput struct {
	Query  string `json:"query" jsonschema:"The natural language question or topic to search for"`
	Source string `json:"source,omitempty" jsonschema:"Restrict results to one documentation source, for example godot or terrain3d"`
	TopK   int    `json:"topK,omitempty" jsonschema:"Maximum passages to return, between 1 and 20"`
}

// ListSourcesInput defines the input schema for the list_sources tool,
// which takes no arguments.
type ListSourcesInput struct{}

// registerDocsTools registers the documentation tools.
// Tools: search_docs, list_sources
func (s *Server) registerDocsTools() error {
	searchSchema, err := jsonschema.For[SearchDocsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for search_docs: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "search_docs",
		Description: "Search the indexed Godot, Terrain3D and Voxel Tools documentation using semantic similarity. " +
			"Returns the most relevant passages with source page URLs and similarity scores.",
		InputSchema: searchSchema,
	}, s.SearchDocs)

	sourcesSchema, err := jsonschema.For[ListSourcesInput](nil)
	if err != nil {
		return fmt.Errorf("schema for list_sources: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "list_sources",
		Description: "List the documentation sources in the index with chunk counts and last update times. " +
			"Source names returned here are valid values for the search_docs source filter.",
		InputSchema: sourcesSchema,
	}, s.ListSources)

	return nil
}

// searchDocsResult is the JSON payload returned by search_docs.
type searchDocsResult struct {
	Query       string      `json:"query"`
	ResultCount int         `json:"result_count"`
	Results     []docResult `json:"results"`
}

type docResult struct {
	Source  string  `json:"source"`
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// listSourcesResult is the JSON payload returned by list_sources.
type listSourcesResult struct {
	SourceCount int            `json:"source_count"`
	Sources     []sourceResult `json:"sources"`
}

type sourceResult struct {
	Source      string    `json:"source"`
	Chunks      int64     `json:"chunks"`
	LastUpdated time.Time `json:"last_updated"`
}

// SearchDocs handles the search_docs MCP tool call.
func (s *Server) SearchDocs(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocsInput) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return errorResult("query is required"), nil, nil
	}

	opts := make([]knowledge.SearchOption, 0, 2)
	if input.TopK > 0 {
		opts = append(opts, knowledge.WithTopK(input.TopK))
	}
	if input.Source != "" {
		opts = append(opts, knowledge.WithSource(input.Source))
	}

	docs, err := s.index.Search(ctx, query, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("search_docs: %w", err)
	}
	s.logger.Debug("search_docs", "query", query, "results", len(docs))

	out := searchDocsResult{
		Query:       query,
		ResultCount: len(docs),
		Results:     make([]docResult, 0, len(docs)),
	}
	for _, d := range docs {
		out.Results = append(out.Results, docResult{
			Source:  d.Source,
			URL:     d.URL,
			Title:   d.Title,
			Content: d.Content,
			Score:   d.Score,
		})
	}
	return jsonResult(out), nil, nil
}

// ListSources handles the list_sources MCP tool call.
func (s *Server) ListSources(ctx context.Context, _ *mcp.CallToolRequest, _ ListSourcesInput) (*mcp.CallToolResult, any, error) {
	counts, err := s.index.Sources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list_sources: %w", err)
	}
	s.logger.Debug("list_sources", "sources", len(counts))

	out := listSourcesResult{
		SourceCount: len(counts),
		Sources:     make([]sourceResult, 0, len(counts)),
	}
	for _, c := range counts {
		out.Sources = append(out.Sources, sourceResult{
			Source:      c.Source,
			Chunks:      c.Chunks,
			LastUpdated: c.LastUpdated,
		})
	}
	return jsonResult(out), nil, nil
}

// jsonResult marshals v into a single text content block, so clients get
// one JSON document they can parse.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// errorResult reports an input problem to the client without failing the
// protocol call.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
