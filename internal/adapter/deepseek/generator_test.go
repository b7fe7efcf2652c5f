package deepseek_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyagemate/apps/backend/internal/adapter/deepseek"
)

func completion(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "deepseek-chat",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
	}
}

func TestGenerator_Complete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "只依据资料回答。", body.Messages[0].Content)
		assert.Equal(t, "user", body.Messages[1].Role)
		assert.Equal(t, "杭州有什么好玩的", body.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion("  推荐西湖。 "))
	}))
	defer ts.Close()

	g, err := deepseek.New(deepseek.Config{APIKey: "sk-test", BaseURL: ts.URL})
	require.NoError(t, err)
	assert.Equal(t, deepseek.DefaultModel, g.ModelName())

	answer, err := g.Complete(context.Background(), "只依据资料回答。", "杭州有什么好玩的")
	require.NoError(t, err)
	assert.Equal(t, "推荐西湖。", answer)
}

func TestGenerator_EmptyAnswer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(""))
	}))
	defer ts.Close()

	g, err := deepseek.New(deepseek.Config{APIKey: "sk-test", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), "sys", "q?")
	assert.ErrorIs(t, err, deepseek.ErrEmptyAnswer)
}

func TestGenerator_UpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	g, err := deepseek.New(deepseek.Config{APIKey: "sk-bad", BaseURL: ts.URL}, option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), "sys", "q?")
	assert.ErrorContains(t, err, "deepseek")
}

func TestNew_NoCredential(t *testing.T) {
	_, err := deepseek.New(deepseek.Config{})
	assert.ErrorIs(t, err, deepseek.ErrNoCredential)
}
