package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"voyagemate/apps/backend/internal/entity"
	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/vector"
	"voyagemate/apps/backend/internal/worker"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Index handles POST and DELETE /entities/{entity}/{id}/index.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	name := r.PathValue("entity")

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(ctx, w, "VALIDATION_ERROR", "id must be a positive integer", http.StatusBadRequest)
		return
	}

	op := worker.OpIndex
	if r.Method == http.MethodDelete {
		op = worker.OpDelete
	}

	task, err := h.service.Enqueue(ctx, name, id, op)
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue index task", "entity", name, "id", id, "error", err, "correlationId", correlationID)
		if errors.Is(err, entity.ErrUnknownEntity) {
			writeError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
			return
		}
		writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "index task queued", "entity", name, "id", id, "op", op, "correlationId", correlationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": task}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Search handles GET /entities/{entity}/search?query=&size=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	name := r.PathValue("entity")
	query := r.URL.Query().Get("query")

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(ctx, w, "VALIDATION_ERROR", "size must be a positive integer", http.StatusBadRequest)
			return
		}
		size = n
	}

	hits, err := h.service.Search(ctx, name, query, size)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrUnknownEntity):
			writeError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrQueryTooShort):
			writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		default:
			slog.ErrorContext(ctx, "entity search failed", "entity", name, "error", err, "correlationId", correlationID)
			writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	if hits == nil {
		hits = []vector.Hit{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": hits,
		"meta": map[string]int{"count": len(hits)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
