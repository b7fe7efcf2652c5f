package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/pipeline"
)

const DefaultTaskTimeout = 2 * time.Minute

// IndexConsumer runs single-entity index and delete tasks. Returning an error requeues the message.
type IndexConsumer struct {
	runners Runners
	timeout time.Duration
}

func NewIndexConsumer(runners Runners, timeout time.Duration) *IndexConsumer {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &IndexConsumer{runners: runners, timeout: timeout}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IndexTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if err := task.Validate(); err != nil {
		slog.Error("poison pill: invalid task", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}
	logger := slog.With("entity", task.Entity, "id", task.ID, "op", task.Op)

	runner, err := h.runners.Runner(task.Entity)
	if err != nil {
		logger.ErrorContext(ctx, "poison pill: no runner for entity", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var done bool
	switch task.Op {
	case OpDelete:
		done, err = runner.DeleteOne(ctx, task.ID)
	default:
		done, err = runner.IndexOne(ctx, task.ID)
	}

	switch {
	case err == nil:
		logger.InfoContext(ctx, "index task finished", "changed", done)
		return nil
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, pipeline.ErrRejected):
		logger.WarnContext(ctx, "index task dropped", "error", err)
		return nil
	case errors.Is(err, pipeline.ErrIndexMissing):
		logger.ErrorContext(ctx, "index task dropped: collection missing, run a full index first", "error", err)
		return nil
	default:
		logger.ErrorContext(ctx, "index task failed", "error", err)
		return err
	}
}
