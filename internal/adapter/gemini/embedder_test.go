package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"voyagemate/apps/backend/internal/adapter/gemini"
)

// fakeGemini answers batchEmbedContents with one [3, 4] vector per request item.
func fakeGemini(t *testing.T, sizes *[]int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "batchEmbedContents")

		var body struct {
			Requests []json.RawMessage `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*sizes = append(*sizes, len(body.Requests))

		embeddings := make([]map[string]interface{}, len(body.Requests))
		for i := range embeddings {
			embeddings[i] = map[string]interface{}{"values": []float32{3, 4}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
	}))
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	var sizes []int
	ts := fakeGemini(t, &sizes)
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "", 0, option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, gemini.DefaultModel, e.ModelName())
	assert.Equal(t, 0, e.Dimensions())

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = "西湖"
	}
	vecs, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, 150)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[149][1], 1e-6)
	assert.Equal(t, []int{100, 50}, sizes)
	assert.Equal(t, 2, e.Dimensions())
}

func TestEmbedder_Ping(t *testing.T) {
	var sizes []int
	ts := fakeGemini(t, &sizes)
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "text-embedding-004", time.Second, option.WithEndpoint(ts.URL))
	require.NoError(t, err)

	require.NoError(t, e.Ping(ctx))
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "text-embedding-004", e.ModelName())
}

func TestEmbedder_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "", 0, option.WithEndpoint(ts.URL))
	require.NoError(t, err)

	_, err = e.EmbedBatch(ctx, []string{"a"})
	assert.Error(t, err)
}

func TestNewEmbedder_NoKey(t *testing.T) {
	_, err := gemini.NewEmbedder(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, gemini.ErrNoCredential)
}

func TestEmbedder_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "", 50*time.Millisecond, option.WithEndpoint(ts.URL))
	require.NoError(t, err)

	start := time.Now()
	_, err = e.EmbedBatch(ctx, []string{"西湖"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
