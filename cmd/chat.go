package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"

	"github.com/docent-ai/docent/internal/client"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/tui"
)

// runChat starts the interactive chat interface against the configured
// backend. The heavy pieces (database, Genkit) live behind the backend;
// chat mode only needs an HTTP client and a terminal.
func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

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
		Logger:  logger.With("component", "gateway"),
	})
	if err != nil {
		return fmt.Errorf("creating backend gateway: %w", err)
	}

	ctrl, err := client.NewController(client.ControllerConfig{
		Backend: gateway,
		UserID:  userID,
		Model:   cfg.DefaultModel(),
		Models:  cfg.SupportedModels(),
		Logger:  logger.With("component", "controller"),
	})
	if err != nil {
		return fmt.Errorf("creating chat controller: %w", err)
	}

	coord, err := client.NewCoordinator(gateway, ctrl, logger.With("component", "coordinator"))
	if err != nil {
		return fmt.Errorf("creating thread coordinator: %w", err)
	}

	// Reopen the previous thread when one is persisted. Failure is not
	// fatal: the chat starts fresh and the notice surfaces in the TUI.
	if _, err := coord.Restore(ctx); err != nil {
		logger.Warn("could not restore the previous thread", "error", err)
	}

	model, err := tui.New(ctx, ctrl, coord, logger.With("component", "tui"))
	if err != nil {
		return fmt.Errorf("creating chat interface: %w", err)
	}
	program := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err = program.Run(); err != nil {
		return fmt.Errorf("chat interface exited: %w", err)
	}
	return nil
}
