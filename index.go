package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"voyagemate/apps/backend/features/failure"
	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/internal/app"
	"voyagemate/apps/backend/internal/entity"
	"voyagemate/apps/backend/internal/pipeline"
)

func newIndexCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index entities into the vector store",
		Long:  "Full and single-entity indexing of destinations, attractions, community_entries and authors.",
	}
	cmd.AddCommand(newIndexRunCmd(c), newIndexOneCmd(c, false), newIndexOneCmd(c, true))
	return cmd
}

func newIndexRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "run <entity>",
		Short:     "Run a full extraction and index every valid record",
		Args:      cobra.ExactArgs(1),
		ValidArgs: entity.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination, _ := cmd.Flags().GetInt64("destination")
			batchSize, _ := cmd.Flags().GetInt("batch-size")

			runner, closeFn, err := c.open(cmd.Context(), args[0], batchSize, destination)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			report.WriteSummary(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().Int64("destination", 0, "destination id (required for attractions)")
	cmd.Flags().Int("batch-size", 0, "override the entity's batch size")
	return cmd
}

func newIndexOneCmd(c *cli, remove bool) *cobra.Command {
	use, short := "one <entity> <id>", "Index a single entity"
	if remove {
		use, short = "delete <entity> <id>", "Delete a single entity's document"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid id %q", args[1])
			}

			runner, closeFn, err := c.open(cmd.Context(), args[0], 0, 0)
			if err != nil {
				return err
			}
			defer closeFn()

			var changed bool
			if remove {
				changed, err = runner.DeleteOne(cmd.Context(), id)
			} else {
				changed, err = runner.IndexOne(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), args[0], id, remove, changed)
			if !changed {
				return fmt.Errorf("%s %d: %w", args[0], id, pipeline.ErrNotFound)
			}
			return nil
		},
	}
}

func printOutcome(w io.Writer, name string, id int64, remove, changed bool) {
	switch {
	case remove && changed:
		fmt.Fprintf(w, "%s %d deleted\n", name, id)
	case remove:
		fmt.Fprintf(w, "%s %d was not indexed\n", name, id)
	case changed:
		fmt.Fprintf(w, "%s %d indexed\n", name, id)
	default:
		fmt.Fprintf(w, "%s %d not indexed\n", name, id)
	}
}

func (c *cli) open(ctx context.Context, name string, batchSize int, destination int64) (pipeline.Runner, func(), error) {
	if c.openRunner != nil {
		return c.openRunner(ctx, name, batchSize, destination)
	}
	return c.runner(ctx, name, batchSize, destination)
}

// runner wires a pipeline for one entity against the configured Postgres, Weaviate and embedder.
func (c *cli) runner(ctx context.Context, name string, batchSize int, destination int64) (pipeline.Runner, func(), error) {
	db, err := app.OpenDB(ctx, c.cfg, c.cfg.MigrationPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := app.NewVectorStore(c.cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	embedder, err := app.NewEmbedder(ctx, c.cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	var opts []entity.Option
	if destination > 0 {
		opts = append(opts, entity.WithDestination(destination))
	}
	runner, err := entity.Build(name, entity.Deps{
		Source:   source.NewPostgresRepo(db),
		Embedder: embedder,
		Store:    store,
		Logger:   c.logger,
		Options: pipeline.Options{
			BatchSize:    batchSize,
			BatchTimeout: c.cfg.BatchTimeout(),
			Sink:         failure.NewService(failure.NewPostgresRepo(db), nil, c.logger),
		},
	}, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return runner, func() { _ = db.Close() }, nil
}
