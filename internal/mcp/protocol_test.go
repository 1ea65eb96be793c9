package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/testutil"
)

// connectServer creates a docent MCP server backed by index and an SDK
// client joined via in-memory transports. Returns the client session for
// making protocol calls. Both sessions close via t.Cleanup.
func connectServer(t *testing.T, index Index) *mcp.ClientSession {
	t.Helper()

	server, err := NewServer(Config{
		Name:    "docent",
		Version: "0.0.1-test",
		Index:   index,
		Logger:  testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

// textContent extracts the first text block of a tool result.
func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] type = %T, want *mcp.TextContent", result.Content[0])
	}
	return tc.Text
}

func TestProtocol_ListTools(t *testing.T) {
	session := connectServer(t, &fakeIndex{})

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() unexpected error: %v", err)
	}

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		if tool.Description == "" {
			t.Errorf("tool %q has no description", tool.Name)
		}
	}
	slices.Sort(names)

	if want := []string{"list_sources", "search_docs"}; !slices.Equal(names, want) {
		t.Errorf("ListTools() = %v, want %v", names, want)
	}
}

func TestProtocol_SearchDocs(t *testing.T) {
	index := &fakeIndex{docs: []knowledge.Document{
		{
			Source:  "terrain3d",
			URL:     "https://terrain3d.readthedocs.io/en/stable/docs/texture_painting.html",
			Title:   "Texture Painting",
			Content: "Texture painting applies albedo and normal layers to sculpted regions.",
			Score:   0.91,
		},
		{
			Source:  "godot",
			URL:     "https://docs.godotengine.org/en/stable/classes/class_node3d.html",
			Title:   "Node3D",
			Content: "Node3D is the base class for objects with a 3D transform.",
			Score:   0.62,
		},
	}}
	session := connectServer(t, index)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_docs",
		Arguments: map[string]any{"query": "  how do I paint textures  "},
	})
	if err != nil {
		t.Fatalf("CallTool(search_docs) unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool(search_docs) returned error result: %s", textContent(t, result))
	}

	var parsed searchDocsResult
	text := textContent(t, result)
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		t.Fatalf("parsing search_docs JSON: %v\ntext: %s", err, text)
	}

	if parsed.Query != "how do I paint textures" {
		t.Errorf("query = %q, want the trimmed query echoed back", parsed.Query)
	}
	if parsed.ResultCount != 2 {
		t.Errorf("result_count = %d, want 2", parsed.ResultCount)
	}
	if len(parsed.Results) != 2 {
		t.Fatalf("results length = %d, want 2", len(parsed.Results))
	}

	first := parsed.Results[0]
	if first.Source != "terrain3d" {
		t.Errorf("results[0].source = %q, want %q", first.Source, "terrain3d")
	}
	if first.Title != "Texture Painting" {
		t.Errorf("results[0].title = %q, want %q", first.Title, "Texture Painting")
	}
	if !strings.Contains(first.Content, "albedo") {
		t.Errorf("results[0].content = %q, want the stored chunk text", first.Content)
	}
	if first.Score != 0.91 {
		t.Errorf("results[0].score = %v, want 0.91", first.Score)
	}

	if query, _ := index.searchCall(); query != "how do I paint textures" {
		t.Errorf("store query = %q, want the trimmed query", query)
	}
}

func TestProtocol_SearchDocs_Filters(t *testing.T) {
	index := &fakeIndex{}
	session := connectServer(t, index)

	if _, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_docs",
		Arguments: map[string]any{"query": "voxel terrain streaming"},
	}); err != nil {
		t.Fatalf("CallTool(search_docs) unexpected error: %v", err)
	}
	if _, opts := index.searchCall(); opts != 0 {
		t.Errorf("search options without filters = %d, want 0", opts)
	}

	if _, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "search_docs",
		Arguments: map[string]any{
			"query":  "voxel terrain streaming",
			"source": "voxeltools",
			"topK":   3,
		},
	}); err != nil {
		t.Fatalf("CallTool(search_docs) unexpected error: %v", err)
	}
	if _, opts := index.searchCall(); opts != 2 {
		t.Errorf("search options with source and topK = %d, want 2", opts)
	}
}

func TestProtocol_SearchDocs_BlankQuery(t *testing.T) {
	index := &fakeIndex{}
	session := connectServer(t, index)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_docs",
		Arguments: map[string]any{"query": "   "},
	})
	if err != nil {
		t.Fatalf("CallTool(search_docs) unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("CallTool(search_docs) with blank query: IsError = false, want true")
	}
	if text := textContent(t, result); !strings.Contains(text, "query is required") {
		t.Errorf("error text = %q, want to mention the missing query", text)
	}
	if query, _ := index.searchCall(); query != "" {
		t.Errorf("store was queried with %q, want no search call", query)
	}
}

func TestProtocol_SearchDocs_StoreError(t *testing.T) {
	index := &fakeIndex{searchErr: errors.New("knowledge store offline")}
	session := connectServer(t, index)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_docs",
		Arguments: map[string]any{"query": "anything"},
	})
	// The store failure must reach the client whichever error channel the
	// SDK routes it through.
	if err != nil {
		if !strings.Contains(err.Error(), "knowledge store offline") {
			t.Errorf("CallTool error = %q, want to carry the store failure", err.Error())
		}
		return
	}
	if !result.IsError {
		t.Fatal("CallTool(search_docs) succeeded, want error result")
	}
	if text := textContent(t, result); !strings.Contains(text, "knowledge store offline") {
		t.Errorf("error text = %q, want to carry the store failure", text)
	}
}

func TestProtocol_ListSources(t *testing.T) {
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	index := &fakeIndex{counts: []knowledge.SourceCount{
		{Source: "godot", Chunks: 14203, LastUpdated: updated},
		{Source: "terrain3d", Chunks: 512, LastUpdated: updated.Add(48 * time.Hour)},
	}}
	session := connectServer(t, index)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "list_sources",
	})
	if err != nil {
		t.Fatalf("CallTool(list_sources) unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool(list_sources) returned error result: %s", textContent(t, result))
	}

	var parsed listSourcesResult
	text := textContent(t, result)
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		t.Fatalf("parsing list_sources JSON: %v\ntext: %s", err, text)
	}

	if parsed.SourceCount != 2 {
		t.Errorf("source_count = %d, want 2", parsed.SourceCount)
	}
	if len(parsed.Sources) != 2 {
		t.Fatalf("sources length = %d, want 2", len(parsed.Sources))
	}
	if parsed.Sources[0].Source != "godot" {
		t.Errorf("sources[0].source = %q, want %q", parsed.Sources[0].Source, "godot")
	}
	if parsed.Sources[0].Chunks != 14203 {
		t.Errorf("sources[0].chunks = %d, want 14203", parsed.Sources[0].Chunks)
	}
	if !parsed.Sources[0].LastUpdated.Equal(updated) {
		t.Errorf("sources[0].last_updated = %v, want %v", parsed.Sources[0].LastUpdated, updated)
	}
}

func TestProtocol_ListSources_Empty(t *testing.T) {
	session := connectServer(t, &fakeIndex{})

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "list_sources",
	})
	if err != nil {
		t.Fatalf("CallTool(list_sources) unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool(list_sources) returned error result: %s", textContent(t, result))
	}

	// An empty index yields an empty array, not null.
	if text := textContent(t, result); !strings.Contains(text, `"sources":[]`) {
		t.Errorf("payload = %s, want an empty sources array", text)
	}
}

func TestProtocol_CallTool_UnknownTool(t *testing.T) {
	session := connectServer(t, &fakeIndex{})

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "delete_everything",
	})
	if err == nil {
		t.Fatal("CallTool(delete_everything) expected error, got nil")
	}
	if !strings.Contains(err.Error(), "delete_everything") {
		t.Errorf("CallTool error = %q, want to contain the tool name", err.Error())
	}
}
