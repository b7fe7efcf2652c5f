// Package indexing exposes the single-entity path over HTTP: requests are queued on NSQ
// for the index worker, and entity collections can be searched by meaning.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"voyagemate/apps/backend/internal/config"
	"voyagemate/apps/backend/internal/entity"
	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/vector"
	"voyagemate/apps/backend/internal/worker"
)

const (
	DefaultSearchSize = 10
	MaxSearchSize     = 100
	minQueryLength    = 2
)

var ErrQueryTooShort = fmt.Errorf("query must be at least %d characters", minQueryLength)

type QueryEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorSearcher interface {
	SearchByVector(ctx context.Context, collection string, vec []float32, limit int, scope *vector.Scope) ([]vector.Hit, error)
}

type Service struct {
	pub         worker.Publisher
	embedder    QueryEmbedder
	searcher    VectorSearcher
	collections map[string]string
}

func NewService(pub worker.Publisher, embedder QueryEmbedder, searcher VectorSearcher) *Service {
	return &Service{pub: pub, embedder: embedder, searcher: searcher, collections: entity.Collections()}
}

func (s *Service) collection(name string) (string, error) {
	c, ok := s.collections[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", entity.ErrUnknownEntity, name)
	}
	return c, nil
}

// Enqueue publishes an index or delete task for one entity record.
func (s *Service) Enqueue(ctx context.Context, name string, id int64, op worker.Op) (worker.IndexTask, error) {
	if _, err := s.collection(name); err != nil {
		return worker.IndexTask{}, err
	}
	task := worker.IndexTask{Entity: name, ID: id, Op: op, CorrelationID: middleware.GetCorrelationID(ctx)}
	body, err := task.Encode()
	if err != nil {
		return worker.IndexTask{}, err
	}
	if err := s.pub.Publish(config.TopicIndexEntity, body); err != nil {
		return worker.IndexTask{}, fmt.Errorf("publish %s: %w", config.TopicIndexEntity, err)
	}
	return task, nil
}

// Search ranks the live collection of an entity type against query.
func (s *Service) Search(ctx context.Context, name, query string, size int) ([]vector.Hit, error) {
	collection, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLength {
		return nil, ErrQueryTooShort
	}
	if size <= 0 {
		size = DefaultSearchSize
	}
	size = min(size, MaxSearchSize)

	vecs, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed query: no vector returned")
	}
	return s.searcher.SearchByVector(ctx, collection, vector.Normalize(vecs[0]), size, nil)
}
