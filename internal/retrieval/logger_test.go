package retrieval

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLogger_ThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	logger := NewQueryLogger(&buf)

	concurrency := 20
	iterations := 50
	var wg sync.WaitGroup

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				logger.Log(QueryLogEntry{Kind: "search", Query: "北京美食", Duration: time.Millisecond})
			}
		}()
	}
	wg.Wait()

	decoder := json.NewDecoder(&buf)
	count := 0
	for decoder.More() {
		var entry QueryLogEntry
		require.NoError(t, decoder.Decode(&entry), "entry %d", count)
		count++
	}
	assert.Equal(t, concurrency*iterations, count)
}

func TestQueryLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	NewQueryLogger(&buf).Log(QueryLogEntry{Kind: "ask", Query: "q", TopK: 5, Duration: 1500 * time.Millisecond})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ask", entry["kind"])
	assert.Equal(t, 1500.0, entry["latency_ms"])
	assert.NotContains(t, entry, "error")
}

func TestQueryLogger_NilIsNoop(t *testing.T) {
	var l *QueryLogger
	assert.NotPanics(t, func() { l.Log(QueryLogEntry{Query: "x"}) })
}

func TestNewFileQueryLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "queries.jsonl")
	l, err := NewFileQueryLogger(path)
	require.NoError(t, err)

	l.Log(QueryLogEntry{Kind: "search", Query: "杭州"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "杭州")
}
