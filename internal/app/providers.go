package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voyagemate/apps/backend/internal/adapter/deepseek"
	"voyagemate/apps/backend/internal/adapter/embedsvc"
	"voyagemate/apps/backend/internal/adapter/gemini"
	"voyagemate/apps/backend/internal/config"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/retrieval"
)

// NewEmbedder picks the embedding backend named by EMBEDDER.
func NewEmbedder(ctx context.Context, cfg *config.Config) (pipeline.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderHTTP:
		return embedsvc.NewClient(cfg.EmbeddingServiceURL, cfg.EmbedTimeout()), nil
	case config.EmbedderGemini, "":
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel, cfg.EmbedTimeout())
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: EMBEDDER=%q", config.ErrInvalidValue, cfg.Embedder)
}

// NewGenerator returns nil when no DeepSeek key is configured; /ask then reports that in its body.
func NewGenerator(cfg *config.Config) retrieval.Generator {
	g, err := deepseek.New(deepseek.Config{APIKey: cfg.DeepSeekAPIKey, Model: cfg.DeepSeekModel, BaseURL: cfg.DeepSeekBaseURL})
	if err != nil {
		if errors.Is(err, deepseek.ErrNoCredential) {
			slog.Warn("DEEPSEEK_API_KEY not set, answer generation disabled")
		} else {
			slog.Error("failed to create generator", "error", err)
		}
		return nil
	}
	return g
}
