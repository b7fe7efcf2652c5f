// Package gemini embeds text with the Gemini embedding API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"voyagemate/apps/backend/internal/vector"
)

const (
	DefaultModel = "gemini-embedding-001"
	// maxBatch is the request limit of batchEmbedContents.
	maxBatch = 100
)

var ErrNoCredential = errors.New("gemini api key not configured")

// Embedder returns L2-normalized vectors, so inner product equals cosine similarity.
type Embedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	dim     atomic.Int64
}

// NewEmbedder bounds every batchEmbedContents request by timeout when it is positive.
func NewEmbedder(ctx context.Context, apiKey, model string, timeout time.Duration, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrNoCredential
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, append(opts, option.WithAPIKey(apiKey))...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model, timeout: timeout}, nil
}

func (e *Embedder) ModelName() string { return e.model }

// Dimensions is zero until the first successful Ping or EmbedBatch.
func (e *Embedder) Dimensions() int { return int(e.dim.Load()) }

// Ping embeds a probe text, which also learns the vector dimension.
func (e *Embedder) Ping(ctx context.Context) error {
	_, err := e.EmbedBatch(ctx, []string{"ping"})
	return err
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding batch", "model", e.model, "count", len(texts))
	em := e.client.EmbeddingModel(e.model)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		b := em.NewBatch()
		for _, t := range texts[start:min(start+maxBatch, len(texts))] {
			b.AddContent(genai.Text(t))
		}

		res, err := e.batchEmbed(ctx, em, b)
		if err != nil {
			slog.ErrorContext(ctx, "embedding failed", "model", e.model, "error", err)
			return nil, err
		}
		for _, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, errors.New("empty embedding received")
			}
			out = append(out, vector.Normalize(emb.Values))
		}
	}

	if len(out) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out))
	}
	if len(out) > 0 {
		e.dim.Store(int64(len(out[0])))
	}
	return out, nil
}

func (e *Embedder) batchEmbed(ctx context.Context, em *genai.EmbeddingModel, b *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return em.BatchEmbedContents(ctx, b)
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
