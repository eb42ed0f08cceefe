// Package cli defines the sse-console command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/azaruiz94/sse-web/internal/app"
	"github.com/azaruiz94/sse-web/internal/config"
	"github.com/azaruiz94/sse-web/internal/mockapi"
	"github.com/azaruiz94/sse-web/internal/observability"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type options struct {
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "sse-console",
		Short:         "Terminal console for the SSE expediente tracking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "optional env file loaded before the environment")
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newWhoamiCommand(opts))
	cmd.AddCommand(newPasswordCommand(opts))
	cmd.AddCommand(newMockAPICommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newWhoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Revalidate the stored session and print the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			user, err := a.Whoami(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s <%s>\n", user.FirstName, user.LastName, user.Email)
			for _, p := range user.Permissions.Sorted() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	}
}

func newPasswordCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Request or complete a password reset",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "request <email>",
		Short: "Ask the backend to send a reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			msg, err := a.Gateway.RequestPasswordReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	})

	var password, confirm string
	reset := &cobra.Command{
		Use:   "reset <token>",
		Short: "Set a new password using a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			msg, err := a.Gateway.ResetPassword(cmd.Context(), args[0], password, confirm)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	reset.Flags().StringVar(&password, "password", "", "new password")
	reset.Flags().StringVar(&confirm, "confirm", "", "new password, repeated")
	_ = reset.MarkFlagRequired("password")
	_ = reset.MarkFlagRequired("confirm")
	cmd.AddCommand(reset)

	return cmd
}

func newMockAPICommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mockapi",
		Short: "Serve the development backend fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context(), opts.envFile)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg)

			var store mockapi.Store = mockapi.NewMemoryStore()
			if cfg.MockRedisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: cfg.MockRedisAddr})
				if err := client.Ping(cmd.Context()).Err(); err != nil {
					return fmt.Errorf("ping mockapi redis: %w", err)
				}
				store = mockapi.NewRedisStore(client, "ssemock")
			}

			srv := mockapi.NewServer(mockapi.Options{
				JWTSecret:    cfg.MockJWTSecret,
				TwoFAEnabled: cfg.TwoFAEnabled,
			}, store, logger)
			srv.SeedDefaults()

			httpSrv := &http.Server{
				Addr:              cfg.MockListenAddr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			logger.Info("mockapi listening", "addr", cfg.MockListenAddr, "redis", cfg.MockRedisAddr != "")
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the console version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sse-console", Version)
		},
	}
}

func buildApp(ctx context.Context, opts *options) (*app.App, error) {
	cfg, err := config.Load(ctx, opts.envFile)
	if err != nil {
		return nil, err
	}
	return app.Initialize(ctx, cfg)
}
