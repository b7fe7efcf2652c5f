package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"voyagemate/apps/backend/internal/config"
	"voyagemate/apps/backend/internal/logger"
	"voyagemate/apps/backend/internal/pipeline"
)

// cli carries what every subcommand needs once the root pre-run has loaded it.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	// openRunner replaces the Postgres/Weaviate wiring of the index commands when set.
	openRunner func(ctx context.Context, name string, batchSize int, destination int64) (pipeline.Runner, func(), error)
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// NewRootCmd creates the voyagemate command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cli{})
}

func newRootCmd(c *cli) *cobra.Command {

	root := &cobra.Command{
		Use:           "voyagemate",
		Short:         "Travel data indexing and retrieval backend",
		Long:          "voyagemate indexes travel entities into Weaviate, builds the travel guide knowledge base and serves search and question answering over it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.LogLevel = lvl
			}
			c.cfg = cfg
			c.logger = logger.New(os.Stdout, cfg.LogLevel)
			slog.SetDefault(c.logger)
			return nil
		},
	}

	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newIndexCmd(c),
		newKBCmd(c),
	)
	return root
}
