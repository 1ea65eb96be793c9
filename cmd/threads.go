package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docent-ai/docent/internal/client"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/timeline"
)

// runThreads dispatches the threads subcommands. Everything goes through
// the HTTP gateway so the command works anywhere the chat client does,
// without database credentials.
func runThreads() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sub := "list"
	rest := []string{}
	if len(os.Args) > 2 {
		sub = os.Args[2]
		rest = os.Args[3:]
	}

	// A configured user_id wins; otherwise reuse or mint the persisted one.
	userID := cfg.UserID
	if userID == "" {
		userID, err = client.EnsureUserID()
		if err != nil {
			return fmt.Errorf("resolving user identity: %w", err)
		}
	}

	gateway, err := client.NewGateway(client.GatewayConfig{
		BaseURL: cfg.BackendURL,
		Logger:  slog.Default().With("component", "gateway"),
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch sub {
	case "list":
		return runThreadsList(ctx, gateway, userID)
	case "show":
		if len(rest) != 1 {
			return fmt.Errorf("usage: docent threads show <thread-id>")
		}
		return runThreadsShow(ctx, gateway, rest[0])
	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: docent threads delete <thread-id>")
		}
		return runThreadsDelete(ctx, gateway, rest[0])
	default:
		return fmt.Errorf("unknown threads subcommand: %s (want list, show, or delete)", sub)
	}
}

func runThreadsList(ctx context.Context, gateway *client.Gateway, userID string) error {
	threads, err := gateway.ListThreads(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	if len(threads) == 0 {
		fmt.Println("No saved threads. Start one with: docent chat")
		return nil
	}

	fmt.Printf("Threads for %s:\n", userID)
	for i, th := range threads {
		name := th.Name
		if name == "" {
			name = "(untitled)"
		}
		fmt.Printf("%3d. %s\n     %s  updated %s\n", i+1, name, th.ID, formatTime(th.UpdatedAt))
	}

	return nil
}

func runThreadsShow(ctx context.Context, gateway *client.Gateway, threadID string) error {
	th, err := gateway.FetchThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("fetching thread: %w", err)
	}

	name := th.Name
	if name == "" {
		name = "(untitled)"
	}
	fmt.Printf("Thread: %s\n", th.ID)
	fmt.Printf("Name: %s\n", name)
	fmt.Printf("Created: %s\n", formatTime(th.CreatedAt))
	fmt.Printf("Updated: %s\n", formatTime(th.UpdatedAt))

	if len(th.Values) == 0 {
		fmt.Println("Messages: 0")
		return nil
	}
	snap, err := timeline.DecodeSnapshot(th.Values)
	if err != nil {
		return fmt.Errorf("decoding thread messages: %w", err)
	}

	fmt.Printf("Messages: %d\n", len(snap.Messages))
	fmt.Println()
	fmt.Println("───────────────────────────────────────")
	fmt.Println()

	for _, msg := range snap.Messages {
		var role string
		switch msg.Type {
		case timeline.TypeHuman:
			role = "You"
		case timeline.TypeAI:
			role = "Docent"
		default:
			continue
		}
		fmt.Printf("%s> %s\n", role, msg.Content)
		fmt.Println()
	}

	return nil
}

func runThreadsDelete(ctx context.Context, gateway *client.Gateway, threadID string) error {
	if err := gateway.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}

	// Forget the pointer when the deleted thread was the current one.
	if current, err := client.LoadCurrentThreadID(); err == nil && current == threadID {
		if err := client.ClearCurrentThreadID(); err != nil {
			slog.Warn("could not clear current thread pointer", "error", err)
		}
	}

	fmt.Printf("Deleted thread %s\n", threadID)
	return nil
}

// formatTime formats time in a human-readable format.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
