// Package cmd provides the docent CLI entry points.
//
// Commands:
//   - chat (default): interactive terminal chat with the Bubble Tea TUI
//   - serve: HTTP API with SSE streaming chat
//   - ingest: crawl and index the documentation sites
//   - mcp: Model Context Protocol server for editor integration
//   - threads: list, show, and delete saved conversation threads
//
// Signal handling and graceful shutdown are implemented for all long
// running commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docent-ai/docent/internal/log"
)

// Execute is the main entry point for the docent CLI.
func Execute() error {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: logLevel}))

	if len(os.Args) < 2 {
		return runChat()
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "serve":
		return runServe()
	case "ingest":
		return runIngest()
	case "mcp":
		return runMCP()
	case "threads":
		return runThreads()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp prints the command, shortcut, and environment reference.
func runHelp() {
	fmt.Print(`Docent - your guide through the Godot, Terrain3D, and VoxelTools docs

Usage:
  docent                      Start interactive chat (default)
  docent serve [addr]         Start HTTP API server (default: localhost:8080)
  docent ingest [flags] [src] Crawl and index the documentation sites
  docent mcp                  Start MCP server (stdio, for editors)
  docent threads [sub]        Manage saved threads (list, show <id>, delete <id>)
  docent --version            Show version information
  docent --help               Show this help

Chat Commands (in interactive mode):
  /help              Show available commands
  /clear             Start a fresh conversation
  /threads           List saved threads
  /thread <name>     Start a new saved thread
  /switch <n|id>     Open a saved thread
  /model [name]      Show or select the answer model
  /exit, /quit       Leave docent

Shortcuts:
  Ctrl+D             Exit docent
  Ctrl+C             Cancel the current run or clear input
  Esc                Cancel the current run

Environment Variables:
  GEMINI_API_KEY     Required for serve/ingest/mcp: Gemini API key
  DOCENT_BACKEND_URL Optional: backend address for chat mode
  DATABASE_URL       Optional: PostgreSQL connection override
  DEBUG              Optional: enable debug logging
`)
}
