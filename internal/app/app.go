package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/azaruiz94/sse-web/internal/bootstrap"
	"github.com/azaruiz94/sse-web/internal/config"
	"github.com/azaruiz94/sse-web/internal/domain"
	"github.com/azaruiz94/sse-web/internal/gateway"
	"github.com/azaruiz94/sse-web/internal/guard"
	"github.com/azaruiz94/sse-web/internal/observability"
	"github.com/azaruiz94/sse-web/internal/session"
	"github.com/azaruiz94/sse-web/internal/tui"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *session.Store
	Gateway       *gateway.Client
	Guard         *guard.Guard
	Observability *observability.Runtime
}

func New(cfg *config.Config, logger *slog.Logger, store *session.Store, gw *gateway.Client, g *guard.Guard, runtime *observability.Runtime) *App {
	return &App{Config: cfg, Logger: logger, Store: store, Gateway: gw, Guard: g, Observability: runtime}
}

// Run boots the session (cached user first, then revalidation against the
// backend) and hands the terminal to the interactive program until it exits
// or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := bootstrap.Start(ctx, a.Store, a.Gateway, a.Logger)

	program := tea.NewProgram(tui.New(ctx, a.Store, a.Gateway, a.Guard), tea.WithContext(ctx))
	_, runErr := program.Run()

	if err := boot.Wait(); err != nil {
		a.Logger.Warn("bootstrap revalidation did not finish cleanly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Observability.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("observability shutdown failed", "error", err)
	}

	if runErr != nil && ctx.Err() != nil {
		// A signal-driven exit surfaces as the context error from the
		// program; leaving via Ctrl-C is a normal way out of the console.
		return nil
	}
	return runErr
}

// Whoami runs the bootstrap sequence without the interactive program and
// returns the authenticated user, if any.
func (a *App) Whoami(ctx context.Context) (*domain.User, error) {
	if err := bootstrap.Start(ctx, a.Store, a.Gateway, a.Logger).Wait(); err != nil {
		return nil, err
	}
	snap := a.Store.Snapshot()
	switch {
	case snap.ServerDown:
		return nil, fmt.Errorf("backend unreachable: %w", gateway.ErrUnavailable)
	case snap.User == nil:
		return nil, gateway.ErrUnauthenticated
	}
	return snap.User, nil
}
