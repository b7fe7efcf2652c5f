// Package embedsvc talks to the sentence-embedding sidecar.
package embedsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"voyagemate/apps/backend/internal/vector"
)

const maxAttempts = 3

// Client embeds text via POST {base}/embed. Returned vectors are L2-normalized.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	backoff time.Duration
	dim     atomic.Int64
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "embedding-service",
		client:  &http.Client{Timeout: timeout},
		backoff: time.Second,
	}
}

// SetBackoff changes the wait unit between connection retries.
func (c *Client) SetBackoff(d time.Duration) {
	c.backoff = d
}

func (c *Client) ModelName() string { return c.model }

func (c *Client) Dimensions() int { return int(c.dim.Load()) }

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"})
	return err
}

// EmbedBatch retries connection failures with a growing wait. HTTP errors are not retried.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]interface{}{"texts": texts})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		vecs, err := c.post(ctx, body)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(texts))
			}
			for _, v := range vecs {
				vector.Normalize(v)
			}
			c.dim.Store(int64(len(vecs[0])))
			return vecs, nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, err
		}

		lastErr = err
		slog.WarnContext(ctx, "embedding service unreachable", "attempt", attempt, "error", err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("embedding service failed after %d attempts: %w", maxAttempts, lastErr)
}

// StatusError is a non-200 answer from the sidecar.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding service error: %d: %s", e.Code, e.Body)
}

func (c *Client) post(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(msg)}
	}

	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, &StatusError{Code: resp.StatusCode, Body: "invalid response: " + err.Error()}
	}
	return vecs, nil
}
