package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voyagemate/apps/backend/internal/app"
	"voyagemate/apps/backend/internal/config"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the index worker",
		Long:  "Serve /search, /ask, /health and the entity endpoints, and consume single-entity index tasks from NSQ.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, c.cfg, c.logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	embedder, err := app.NewEmbedder(ctx, cfg)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, deps.DB, deps.VectorStore, deps.NSQProducer, embedder, app.NewGenerator(cfg), logger)
	if err != nil {
		return err
	}

	if cfg.EnableWorker {
		consumer, err := a.StartWorker(cfg)
		if err != nil {
			// The API still serves; queued tasks wait in NSQ.
			logger.Error("index worker not started", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	if !cfg.EnableAPI {
		<-ctx.Done()
		return nil
	}
	return a.Run(ctx)
}
