// Package query serves the knowledge base retrieval endpoints and the raw embedding endpoint.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/retrieval"
)

type Engine interface {
	Search(ctx context.Context, query string, k int) (*retrieval.SearchResult, error)
	Ask(ctx context.Context, question string, k int) *retrieval.Answer
	Health() retrieval.Health
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Handler struct {
	engine   Engine
	embedder Embedder
}

func NewHandler(engine Engine, embedder Embedder) *Handler {
	return &Handler{engine: engine, embedder: embedder}
}

type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// textParam reads a required text parameter and the optional top_k.
func textParam(r *http.Request, name string) (string, int, string) {
	text := strings.TrimSpace(r.URL.Query().Get(name))
	if utf8.RuneCountInString(text) < retrieval.MinQueryLength {
		return "", 0, name + " must be at least " + strconv.Itoa(retrieval.MinQueryLength) + " characters"
	}
	k := retrieval.DefaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "", 0, "top_k must be a positive integer"
		}
		k = n
	}
	return text, k, ""
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, k, msg := textParam(r, "query")
	if msg != "" {
		writeError(ctx, w, "VALIDATION_ERROR", msg, http.StatusBadRequest)
		return
	}

	res, err := h.engine.Search(ctx, q, k)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err, "correlationId", middleware.GetCorrelationID(ctx))
		writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, w, http.StatusOK, res)
}

// Ask never answers 5xx: generation problems are reported inside the body.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, k, msg := textParam(r, "question")
	if msg != "" {
		writeError(ctx, w, "VALIDATION_ERROR", msg, http.StatusBadRequest)
		return
	}
	writeJSON(ctx, w, http.StatusOK, h.engine.Ask(ctx, q, k))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, h.engine.Health())
}

func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, "INVALID_JSON", "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Texts) == 0 {
		writeError(ctx, w, "VALIDATION_ERROR", "texts must not be empty", http.StatusBadRequest)
		return
	}

	vecs, err := h.embedder.EmbedBatch(ctx, req.Texts)
	if err != nil {
		slog.ErrorContext(ctx, "embed failed", "count", len(req.Texts), "error", err, "correlationId", middleware.GetCorrelationID(ctx))
		writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, w, http.StatusOK, vecs)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
