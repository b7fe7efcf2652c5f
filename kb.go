package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voyagemate/apps/backend/internal/app"
	"voyagemate/apps/backend/internal/knowledge"
	"voyagemate/apps/backend/internal/text"
)

func newKBCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Build the travel guide knowledge base",
	}
	cmd.PersistentFlags().String("dir", "", "knowledge base directory (default KB_DIR)")
	cmd.PersistentFlags().String("name", "", "knowledge base file stem (default KB_NAME)")
	cmd.AddCommand(newKBChunkCmd(c), newKBBuildCmd(c))
	return cmd
}

func (c *cli) kbLocation(cmd *cobra.Command) (string, string) {
	dir, _ := cmd.Flags().GetString("dir")
	name, _ := cmd.Flags().GetString("name")
	if dir == "" {
		dir = c.cfg.KBDir
	}
	if name == "" {
		name = c.cfg.KBName
	}
	return dir, name
}

func newKBChunkCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split raw {url, markdown} JSONL pages into chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, _ := cmd.Flags().GetString("input")
			maxRunes, _ := cmd.Flags().GetInt("max-chars")
			overlap, _ := cmd.Flags().GetInt("overlap")
			dir, name := c.kbLocation(cmd)

			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()

			chunks, err := knowledge.ChunkRaw(f, maxRunes, overlap)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return err
			}
			out := knowledge.PathsFor(dir, name).Chunks
			if err := knowledge.WriteChunks(out, chunks); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d chunks to %s\n", len(chunks), out)
			return nil
		},
	}
	cmd.Flags().String("input", "", "raw pages JSONL")
	cmd.Flags().Int("max-chars", text.DefaultMaxRunes, "maximum characters per chunk")
	cmd.Flags().Int("overlap", text.DefaultOverlap, "characters shared between consecutive windows")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newKBBuildCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed the chunks file and write the index and metadata files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch, _ := cmd.Flags().GetInt("batch-size")
			dir, name := c.kbLocation(cmd)

			chunks, err := knowledge.ReadChunks(knowledge.PathsFor(dir, name).Chunks)
			if err != nil {
				return err
			}
			embedder, err := app.NewEmbedder(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			base, err := knowledge.NewBuilder(embedder, batch, c.logger).Build(cmd.Context(), chunks, dir, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built %s: %d chunks, dimension %d\n", name, base.Index.Len(), base.Index.Dim())
			return nil
		},
	}
	cmd.Flags().Int("batch-size", knowledge.DefaultBuildBatch, "texts per embedding request")
	return cmd
}
