package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/vector"
)

type FailureRepo interface {
	Count(ctx context.Context) (int, error)
}

type VectorStore interface {
	Count(ctx context.Context, collection string, scope *vector.Scope) (int, error)
}

type KnowledgeBase interface {
	ChunkCount() int
}

type Handler struct {
	collections map[string]string
	failureRepo FailureRepo
	vectorStore VectorStore
	kb          KnowledgeBase
}

// NewHandler takes the entity name to collection mapping to report on.
func NewHandler(collections map[string]string, f FailureRepo, v VectorStore, kb KnowledgeBase) *Handler {
	return &Handler{collections: collections, failureRepo: f, vectorStore: v, kb: kb}
}

type CollectionStats struct {
	Entity     string `json:"entity"`
	Collection string `json:"collection"`
	// Documents is nil when the collection could not be counted, usually because it was never built.
	Documents *int `json:"documents"`
}

type StatsResponse struct {
	Collections         []CollectionStats `json:"collections"`
	Documents           int               `json:"documents"`
	Failures            int               `json:"failures"`
	KnowledgeBaseChunks int               `json:"knowledge_base_chunks"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	fCount, err := h.failureRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count index failures", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count index failures", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{Collections: []CollectionStats{}, Failures: fCount}
	if h.kb != nil {
		resp.KnowledgeBaseChunks = h.kb.ChunkCount()
	}

	names := make([]string, 0, len(h.collections))
	for name := range h.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cs := CollectionStats{Entity: name, Collection: h.collections[name]}
		n, err := h.vectorStore.Count(ctx, cs.Collection, nil)
		if err != nil {
			slog.WarnContext(ctx, "failed to count collection", "collection", cs.Collection, "error", err, "correlationId", correlationID)
		} else {
			cs.Documents = &n
			resp.Documents += n
		}
		resp.Collections = append(resp.Collections, cs)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
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
