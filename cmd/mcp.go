package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/docent-ai/docent/internal/app"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/mcp"
	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// runMCP serves the documentation search tools over stdio. Stdout
// belongs to the MCP protocol; all logging goes to stderr via the
// default slog handler.
func runMCP() error {
	const serverName = "docent"

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("docent mcp starting", "version", Version)

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("closing application", "error", closeErr)
		}
	}()

	server, err := mcp.NewServer(mcp.Config{
		Name:    serverName,
		Version: Version,
		Index:   a.Knowledge,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP tools ready", "name", serverName, "transport", "stdio")
	if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("running MCP server: %w", err)
	}

	logger.Info("MCP server stopped")
	return nil
}
