package failure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voyagemate/apps/backend/internal/config"
	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/worker"
)

const publishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type Service struct {
	repo   Repository
	pub    worker.Publisher
	logger *slog.Logger
}

func NewService(repo Repository, pub worker.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger}
}

// Record implements pipeline.FailureSink.
func (s *Service) Record(ctx context.Context, entity string, f pipeline.FailureRecord) error {
	return s.repo.Save(ctx, &Failure{
		Entity:   entity,
		EntityID: f.ID,
		Stage:    string(f.Stage),
		Reason:   f.Reason,
		RunID:    middleware.GetRunID(ctx),
	})
}

// Resolve implements pipeline.FailureSink.
func (s *Service) Resolve(ctx context.Context, entity string, ids []int64) error {
	return s.repo.DeleteEntities(ctx, entity, ids)
}

func (s *Service) List(ctx context.Context, entity string) ([]Failure, error) {
	return s.repo.List(ctx, entity)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry requeues the failed record as an index task and drops the ledger row.
func (s *Service) Retry(ctx context.Context, id string) error {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	body, err := worker.IndexTask{
		Entity:        f.Entity,
		ID:            f.EntityID,
		Op:            worker.OpIndex,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}.Encode()
	if err != nil {
		return fmt.Errorf("encode task for failure %s: %w", id, err)
	}

	done := make(chan error, 1)
	go func() { done <- s.pub.Publish(config.TopicIndexEntity, body) }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "failure requeued", "id", id, "entity", f.Entity, "entity_id", f.EntityID)
	return s.repo.Delete(ctx, id)
}
