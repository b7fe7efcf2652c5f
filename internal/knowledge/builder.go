package knowledge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"voyagemate/apps/backend/internal/text"
	"voyagemate/apps/backend/internal/vector"
)

const DefaultBuildBatch = 64

// Embedder is the part of an embedding backend the builder needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// RawDocument is one scraped page: a URL and its markdown body.
type RawDocument struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// ChunkRaw splits each raw document into passages. Chunk ids are "<doc>-<passage>";
// a document without a URL is sourced as "doc-<doc>".
func ChunkRaw(r io.Reader, maxRunes, overlap int) ([]Chunk, error) {
	docs, err := ReadJSONL[RawDocument](r)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for i, d := range docs {
		source := d.URL
		if source == "" {
			source = "doc-" + strconv.Itoa(i)
		}
		for j, passage := range text.SplitMarkdown(d.Markdown, maxRunes, overlap) {
			chunks = append(chunks, Chunk{ID: fmt.Sprintf("%d-%d", i, j), Source: source, Text: passage})
		}
	}
	return chunks, nil
}

// Builder embeds chunks and writes the three knowledge base files.
type Builder struct {
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

func NewBuilder(embedder Embedder, batchSize int, logger *slog.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBuildBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{embedder: embedder, batchSize: batchSize, logger: logger}
}

// Build embeds every chunk, in order, and writes <stem>.index, <stem>_meta.json and
// <stem>_chunks.jsonl under dir. Any embedding failure aborts the build.
func (b *Builder) Build(ctx context.Context, chunks []Chunk, dir, stem string) (*Base, error) {
	if len(chunks) == 0 {
		return nil, ErrEmpty
	}

	meta := &Metadata{Model: b.embedder.ModelName(), Metas: make([][2]string, len(chunks))}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			chunks[i].ID = strconv.Itoa(i)
		}
		meta.Metas[i] = [2]string{chunks[i].ID, c.Source}
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		vecs, err := b.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end-1, len(vecs))
		}
		for _, v := range vecs {
			vectors = append(vectors, vector.Normalize(v))
		}
		b.logger.InfoContext(ctx, "embedded chunks", "done", end, "total", len(texts))
	}

	idx, err := NewFlatIndex(vectors)
	if err != nil {
		return nil, err
	}

	p := PathsFor(dir, stem)
	if err := WriteIndex(p.Index, idx); err != nil {
		return nil, err
	}
	if err := WriteMetadata(p.Meta, meta); err != nil {
		return nil, err
	}
	if err := WriteChunks(p.Chunks, chunks); err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "knowledge base written", "dir", dir, "name", stem, "rows", idx.Len(), "dimension", idx.Dim())
	return &Base{Index: idx, Meta: meta, Chunks: chunks}, nil
}
