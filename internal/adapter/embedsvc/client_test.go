package embedsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyagemate/apps/backend/internal/adapter/embedsvc"
)

func TestClient_EmbedBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"北京美食", "杭州西湖"}, body.Texts)

		json.NewEncoder(w).Encode([][]float32{{1, 0, 0}, {0, 1, 0}})
	}))
	defer ts.Close()

	c := embedsvc.NewClient(ts.URL+"/", time.Second)
	vecs, err := c.EmbedBatch(context.Background(), []string{"北京美食", "杭州西湖"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
	assert.Equal(t, 3, c.Dimensions())
}

func TestClient_CountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 0}})
	}))
	defer ts.Close()

	c := embedsvc.NewClient(ts.URL, time.Second)
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "returned 1 vectors for 2 texts")
}

func TestClient_StatusErrorNotRetried(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"texts must not be empty"}`))
	}))
	defer ts.Close()

	c := embedsvc.NewClient(ts.URL, time.Second)
	_, err := c.EmbedBatch(context.Background(), []string{"a"})

	var statusErr *embedsvc.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Contains(t, err.Error(), "texts must not be empty")
	assert.Equal(t, 1, calls)
}

func TestClient_ConnectionRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := embedsvc.NewClient(url, time.Second)
	c.SetBackoff(time.Millisecond)

	err := c.Ping(context.Background())
	assert.ErrorContains(t, err, "failed after 3 attempts")
	assert.Equal(t, 0, c.Dimensions())
}
