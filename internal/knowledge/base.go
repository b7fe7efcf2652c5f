// Package knowledge persists and loads the retrieval knowledge base: a flat
// vector index, its row metadata and the passage texts.
package knowledge

import (
	"errors"
	"fmt"
)

var (
	ErrRowMismatch = errors.New("knowledge base files disagree on row count")
	ErrEmpty       = errors.New("knowledge base has no chunks")
)

// Base is a loaded knowledge base. Row i of Index belongs to Metas[i] and Chunks[i].
type Base struct {
	Index  *FlatIndex
	Meta   *Metadata
	Chunks []Chunk
}

// Load reads all three files and checks that they agree on the number of rows.
func Load(dir, stem string) (*Base, error) {
	p := PathsFor(dir, stem)

	idx, err := ReadIndex(p.Index)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	meta, err := ReadMetadata(p.Meta)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	chunks, err := ReadChunks(p.Chunks)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	if idx.Len() != len(meta.Metas) || idx.Len() != len(chunks) {
		return nil, fmt.Errorf("%w: index %d, metadata %d, chunks %d", ErrRowMismatch, idx.Len(), len(meta.Metas), len(chunks))
	}
	if len(chunks) == 0 {
		return nil, ErrEmpty
	}
	return &Base{Index: idx, Meta: meta, Chunks: chunks}, nil
}

// Source returns the source of row, preferring the chunk's own field.
func (b *Base) Source(row int) string {
	if s := b.Chunks[row].Source; s != "" {
		return s
	}
	return b.Meta.Metas[row][1]
}
