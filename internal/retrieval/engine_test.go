package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyagemate/apps/backend/internal/knowledge"
	"voyagemate/apps/backend/internal/middleware"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	model string
}

func (f *fakeEmbedder) ModelName() string { return f.model }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{append([]float32(nil), f.vec...)}, nil
}

type fakeGenerator struct {
	answer string
	err    error
	system string
	user   string
}

func (f *fakeGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.answer, f.err
}

func testBase(t *testing.T) *knowledge.Base {
	t.Helper()
	idx, err := knowledge.NewFlatIndex([][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})
	require.NoError(t, err)
	return &knowledge.Base{
		Index: idx,
		Meta:  &knowledge.Metadata{Model: "m", Metas: [][2]string{{"0-0", "北京"}, {"1-0", "杭州"}, {"2-0", "成都"}}},
		Chunks: []knowledge.Chunk{
			{ID: "0-0", Source: "北京", Text: "北京烤鸭"},
			{ID: "1-0", Source: "杭州", Text: "西湖醋鱼"},
			{ID: "2-0", Text: "成都火锅"},
		},
	}
}

func TestEngine_Search(t *testing.T) {
	var logBuf bytes.Buffer
	e := New(testBase(t), &fakeEmbedder{vec: []float32{0, 2}}, nil, NewQueryLogger(&logBuf), nil, Options{})

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	res, err := e.Search(ctx, "杭州美食", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ChunksFound)
	assert.Equal(t, "source: 杭州\n\n西湖醋鱼\n\n---\n\nsource: 成都\n\n成都火锅", res.Context)
	require.Len(t, res.Passages, 2)
	assert.Equal(t, "1-0", res.Passages[0].ChunkID)
	assert.GreaterOrEqual(t, res.Passages[0].Score, res.Passages[1].Score)

	var entry QueryLogEntry
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
	assert.Equal(t, "search", entry.Kind)
	assert.Equal(t, 2, entry.ChunksFound)
	assert.Equal(t, "corr-1", entry.CorrelationID)
}

func TestEngine_Search_DefaultsAndClamp(t *testing.T) {
	e := New(testBase(t), &fakeEmbedder{vec: []float32{1, 0}}, nil, nil, nil, Options{})

	res, err := e.Search(context.Background(), "北京", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksFound)
	assert.Equal(t, "北京", res.Passages[0].Source)
}

func TestEngine_Search_EmbedError(t *testing.T) {
	e := New(testBase(t), &fakeEmbedder{err: errors.New("embedder down")}, nil, nil, nil, Options{})

	_, err := e.Search(context.Background(), "北京", 5)
	assert.ErrorContains(t, err, "embedder down")
}

// A knowledge base with zero chunks answers in degraded mode.
func TestEngine_ScenarioC_ZeroChunks(t *testing.T) {
	idx, err := knowledge.NewFlatIndex(nil)
	require.NoError(t, err)
	empty := &knowledge.Base{Index: idx, Meta: &knowledge.Metadata{}}

	e := New(empty, &fakeEmbedder{vec: []float32{1, 0}}, nil, nil, nil, Options{})
	res, err := e.Search(context.Background(), "北京美食", 5)
	require.NoError(t, err)
	assert.Equal(t, UnavailableMessage, res.Context)
	assert.Equal(t, 0, res.ChunksFound)
	assert.False(t, e.Health().KnowledgeBaseLoaded)
}

func TestEngine_Open_MissingFilesDegrades(t *testing.T) {
	e := Open(context.Background(), t.TempDir(), "kb", &fakeEmbedder{}, nil, nil, nil, Options{})
	assert.False(t, e.Loaded())
	assert.Equal(t, Health{Status: "healthy"}, e.Health())

	res, err := e.Search(context.Background(), "北京美食", 5)
	require.NoError(t, err)
	assert.Equal(t, UnavailableMessage, res.Context)

	ans := e.Ask(context.Background(), "北京有什么好吃的", 5)
	assert.Equal(t, UnavailableMessage, ans.Context)
	assert.Equal(t, 0, ans.ChunksUsed)
	assert.Equal(t, UnavailableMessage, ans.Error)
	assert.Contains(t, ans.Answer, UnavailableMessage)
}

func TestEngine_Open_Loads(t *testing.T) {
	dir := t.TempDir()
	emb := &fakeEmbedder{vec: []float32{1, 0}, model: "m"}
	_, err := knowledge.NewBuilder(&builderEmbedder{}, 0, nil).Build(context.Background(),
		[]knowledge.Chunk{{ID: "a", Source: "s", Text: "t"}}, dir, "kb")
	require.NoError(t, err)

	e := Open(context.Background(), dir, "kb", emb, nil, nil, nil, Options{})
	assert.Equal(t, Health{Status: "healthy", KnowledgeBaseLoaded: true, ChunksCount: 1}, e.Health())
}

func TestEngine_Open_ModelMismatchDegrades(t *testing.T) {
	dir := t.TempDir()
	_, err := knowledge.NewBuilder(&builderEmbedder{}, 0, nil).Build(context.Background(),
		[]knowledge.Chunk{{ID: "a", Source: "s", Text: "t"}}, dir, "kb")
	require.NoError(t, err)

	e := Open(context.Background(), dir, "kb", &fakeEmbedder{vec: []float32{1, 0}, model: "other-model"}, nil, nil, nil, Options{})
	assert.False(t, e.Loaded())

	res, err := e.Search(context.Background(), "北京美食", 5)
	require.NoError(t, err)
	assert.Equal(t, UnavailableMessage, res.Context)
}

func TestEngine_Open_CorruptIndexDegrades(t *testing.T) {
	dir := t.TempDir()
	_, err := knowledge.NewBuilder(&builderEmbedder{}, 0, nil).Build(context.Background(),
		[]knowledge.Chunk{{ID: "a", Source: "s", Text: "t"}}, dir, "kb")
	require.NoError(t, err)

	// dim 0 with a huge row count
	require.NoError(t, os.WriteFile(knowledge.PathsFor(dir, "kb").Index, []byte{0, 0, 0, 0, 0, 0, 0, 4}, 0o600))

	e := Open(context.Background(), dir, "kb", &fakeEmbedder{vec: []float32{1, 0}, model: "m"}, nil, nil, nil, Options{})
	assert.False(t, e.Loaded())
	assert.Equal(t, 0, e.ChunkCount())
}

type builderEmbedder struct{}

func (builderEmbedder) ModelName() string { return "m" }

func (builderEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestEngine_Ask(t *testing.T) {
	gen := &fakeGenerator{answer: "推荐西湖醋鱼。"}
	e := New(testBase(t), &fakeEmbedder{vec: []float32{0, 1}}, gen, nil, nil, Options{})

	ans := e.Ask(context.Background(), "杭州吃什么", 1)
	assert.Equal(t, "推荐西湖醋鱼。", ans.Answer)
	assert.Equal(t, 1, ans.ChunksUsed)
	assert.Empty(t, ans.Error)
	assert.Equal(t, SystemPrompt, gen.system)
	assert.Equal(t, "[参考资料]\nsource: 杭州\n\n西湖醋鱼\n\n[问题]\n杭州吃什么", gen.user)
}

func TestEngine_Ask_GeneratorFailureIsReported(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("401 unauthorized")}
	e := New(testBase(t), &fakeEmbedder{vec: []float32{0, 1}}, gen, nil, nil, Options{})

	ans := e.Ask(context.Background(), "杭州吃什么", 1)
	assert.Equal(t, "401 unauthorized", ans.Error)
	assert.Equal(t, "抱歉，无法生成回答: 401 unauthorized", ans.Answer)
	assert.Contains(t, ans.Context, "西湖醋鱼")
}

func TestEngine_Ask_NoGenerator(t *testing.T) {
	e := New(testBase(t), &fakeEmbedder{vec: []float32{0, 1}}, nil, nil, nil, Options{})
	ans := e.Ask(context.Background(), "杭州吃什么", 1)
	assert.Equal(t, ErrNoGenerator.Error(), ans.Error)
}

func TestEngine_ConcurrentSearch(t *testing.T) {
	e := New(testBase(t), &fakeEmbedder{vec: []float32{1, 0}}, nil, nil, nil, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Search(context.Background(), "北京", 3)
			assert.NoError(t, err)
			assert.Equal(t, 3, res.ChunksFound)
		}()
	}
	wg.Wait()
}
