package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/latestcomment/round-feedback/internal/catalog"
	"github.com/latestcomment/round-feedback/internal/config"
	"github.com/latestcomment/round-feedback/internal/handlers"
	"github.com/latestcomment/round-feedback/internal/logger"
	"github.com/latestcomment/round-feedback/internal/models"
	"github.com/latestcomment/round-feedback/internal/router"
	"github.com/latestcomment/round-feedback/internal/services"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "round-feedback:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port    int
		envFile string
	)

	cmd := &cobra.Command{
		Use:           "round-feedback",
		Short:         "Serve round feedback for participants and the supervisor dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger.Setup(cfg)
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "load environment from this file")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.UsesDefaultPassword() {
		slog.Warn("ADMIN_PASS not set, using the default supervisor password")
	}

	cat := catalog.Default()

	var completer services.Completer
	if cfg.Classifier.Enabled() {
		var err error
		completer, err = services.NewOpenAICompleter(cfg.Classifier)
		if err != nil {
			return fmt.Errorf("classifier: %w", err)
		}
	} else {
		slog.Info("OPENAI_API_KEY not set, automated feedback is chosen at random")
	}
	classifier := services.NewClassifier(completer, cat.Automated, cfg.Classifier.Timeout)

	store := models.NewRoundStore()
	feed := services.NewPendingFeed(store)
	rounds := services.NewRoundService(store, cat, classifier, feed)
	sessions := services.NewSupervisorSessions(cfg.AdminPassword, cfg.SessionTTL, cfg.IsProduction())

	h := handlers.NewHandler(rounds, sessions)
	ws := handlers.NewWebSocketHandler(feed, sessions)
	app := router.New(router.Config{
		AllowedOrigin: cfg.AllowedOrigin,
		AccessLog:     true,
	}, h, ws)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "port", cfg.Port, "env", cfg.Env)
		errCh <- app.Listen(":" + strconv.Itoa(cfg.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server closed", "rounds", store.Len())
	return nil
}
