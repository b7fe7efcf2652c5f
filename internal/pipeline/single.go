package pipeline

import (
	"context"
	"errors"
	"fmt"

	"voyagemate/apps/backend/internal/vector"
)

// IndexOne fetches, validates, embeds and upserts exactly one entity.
// It never creates the collection: a missing collection yields ErrIndexMissing.
// The whole operation is bounded by the batch timeout.
func (p *Pipeline[R]) IndexOne(ctx context.Context, id int64) (bool, error) {
	logger := p.logger.With("id", id)
	ctx, cancel := context.WithTimeout(ctx, p.opts.BatchTimeout)
	defer cancel()

	if err := p.pingStore(ctx); err != nil {
		return false, err
	}
	if err := p.requireCollection(ctx); err != nil {
		return false, err
	}

	r, err := p.adapter.FetchOne(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.InfoContext(ctx, "entity not found or not visible")
		}
		return false, err
	}

	text := p.adapter.Compose(r)
	if v := Validate(p.desc.PrimaryField, p.adapter.Subject(r), text, MinSingleComposedLength); !v.Valid {
		logger.WarnContext(ctx, "entity rejected", "reason", v.Reason)
		return false, fmt.Errorf("%w: %s", ErrRejected, v.Reason)
	}

	vecs, err := p.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return false, fmt.Errorf("%w: embedder returned %d vectors", ErrEmbedding, len(vecs))
	}

	doc := vector.Document{ID: p.adapter.ID(r), Fields: p.adapter.Fields(r), Vector: vecs[0]}
	if err := p.store.UpsertOne(ctx, p.desc.Collection.Name, doc); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	logger.InfoContext(ctx, "entity indexed")
	p.resolve(ctx, doc.ID)
	return true, nil
}

// DeleteOne removes one entity's document. A document that does not exist is (false, nil).
func (p *Pipeline[R]) DeleteOne(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.BatchTimeout)
	defer cancel()

	if err := p.pingStore(ctx); err != nil {
		return false, err
	}
	if err := p.requireCollection(ctx); err != nil {
		return false, err
	}

	collection := p.desc.Collection.Name
	exists, err := p.store.ExistsDoc(ctx, collection, id)
	if err != nil {
		return false, err
	}
	if !exists {
		p.logger.InfoContext(ctx, "document not in index", "id", id)
		return false, nil
	}

	deleted, err := p.store.DeleteOne(ctx, collection, id)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if deleted {
		p.logger.InfoContext(ctx, "document deleted", "id", id)
		p.resolve(ctx, id)
	}
	return deleted, nil
}

func (p *Pipeline[R]) requireCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	exists, err := p.store.Exists(ctx, p.desc.Collection)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrIndexMissing, p.desc.Collection.Name)
	}
	return nil
}
