// Package retrieval answers queries against the knowledge base: embed, k-NN over
// the flat index, render ranked context, and optionally generate an answer.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voyagemate/apps/backend/internal/knowledge"
	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/vector"
)

const (
	DefaultTopK    = 5
	MinQueryLength = 2

	// UnavailableMessage is the whole context returned while no index is loaded.
	UnavailableMessage = "knowledge base unavailable"
	Delimiter          = "\n\n---\n\n"

	SystemPrompt = "你是中文智能旅行助手。回答必须依据给定资料，若没有相关信息就说不知道。"
	apology      = "抱歉，无法生成回答: "
)

var (
	ErrIndexUnavailable = errors.New(UnavailableMessage)
	ErrNoGenerator      = errors.New("answer generator not configured")
)

type QueryEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// UserPrompt renders the generator's user turn.
func UserPrompt(question, passages string) string {
	return "[参考资料]\n" + passages + "\n\n[问题]\n" + question
}

type Options struct {
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	base      *knowledge.Base
	embedder  QueryEmbedder
	generator Generator
	qlog      *QueryLogger
	logger    *slog.Logger
	opts      Options
}

// New builds an engine over base. A nil or empty base puts the engine in degraded mode.
// generator may be nil, in which case Ask reports ErrNoGenerator.
func New(base *knowledge.Base, embedder QueryEmbedder, generator Generator, qlog *QueryLogger, logger *slog.Logger, opts Options) *Engine {
	if base != nil && len(base.Chunks) == 0 {
		base = nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{base: base, embedder: embedder, generator: generator, qlog: qlog, logger: logger, opts: opts}
}

// Open loads the knowledge base from disk. A load failure, or a base built by a different
// embedding model than embedder, is logged and yields a degraded engine.
func Open(ctx context.Context, dir, stem string, embedder QueryEmbedder, generator Generator, qlog *QueryLogger, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := knowledge.Load(dir, stem)
	if err != nil {
		logger.ErrorContext(ctx, "knowledge base not loaded, serving in degraded mode", "dir", dir, "name", stem, "error", err)
	} else if built, query := base.Meta.Model, embedder.ModelName(); built != "" && query != "" && built != query {
		logger.ErrorContext(ctx, "knowledge base built with a different embedding model, serving in degraded mode",
			"dir", dir, "name", stem, "built_with", built, "query_model", query)
		base = nil
	} else {
		logger.InfoContext(ctx, "knowledge base loaded", "chunks", len(base.Chunks), "dimension", base.Index.Dim(), "model", base.Meta.Model)
	}
	return New(base, embedder, generator, qlog, logger, opts)
}

func (e *Engine) Loaded() bool { return e.base != nil }

func (e *Engine) ChunkCount() int {
	if e.base == nil {
		return 0
	}
	return len(e.base.Chunks)
}

type Health struct {
	Status              string `json:"status"`
	KnowledgeBaseLoaded bool   `json:"knowledge_base_loaded"`
	ChunksCount         int    `json:"chunks_count"`
}

func (e *Engine) Health() Health {
	return Health{Status: "healthy", KnowledgeBaseLoaded: e.Loaded(), ChunksCount: e.ChunkCount()}
}

// Passage is one ranked chunk.
type Passage struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
}

type SearchResult struct {
	Query       string    `json:"query"`
	Context     string    `json:"context"`
	ChunksFound int       `json:"chunks_found"`
	Passages    []Passage `json:"-"`
}

// Search returns the rendered context of the top k passages. In degraded mode the
// context is UnavailableMessage and no error is returned.
func (e *Engine) Search(ctx context.Context, query string, k int) (*SearchResult, error) {
	start := time.Now()
	k = topK(k)

	res, err := e.search(ctx, query, k)

	entry := QueryLogEntry{Kind: "search", Query: query, TopK: k, Degraded: !e.Loaded(), Duration: time.Since(start), CorrelationID: middleware.GetCorrelationID(ctx)}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.ChunksFound = res.ChunksFound
	}
	e.qlog.Log(entry)
	return res, err
}

func (e *Engine) search(ctx context.Context, query string, k int) (*SearchResult, error) {
	if e.base == nil {
		return &SearchResult{Query: query, Context: UnavailableMessage}, nil
	}

	qv, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := e.base.Index.Search(qv, k)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{Query: query, Passages: make([]Passage, 0, len(matches))}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		c := e.base.Chunks[m.Row]
		p := Passage{ChunkID: e.base.Meta.Metas[m.Row][0], Source: e.base.Source(m.Row), Text: c.Text, Score: m.Score}
		res.Passages = append(res.Passages, p)
		blocks = append(blocks, "source: "+p.Source+"\n\n"+p.Text)
	}
	res.Context = strings.Join(blocks, Delimiter)
	res.ChunksFound = len(blocks)
	return res, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.EmbedTimeout)
		defer cancel()
	}
	vecs, err := e.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return vector.Normalize(vecs[0]), nil
}

type Answer struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Context    string `json:"context"`
	ChunksUsed int    `json:"chunks_used"`
	Error      string `json:"error,omitempty"`
}

// Ask retrieves context for question and generates an answer from it.
// It never fails: every problem is reported in Answer.Error.
func (e *Engine) Ask(ctx context.Context, question string, k int) *Answer {
	start := time.Now()
	k = topK(k)

	ans := e.ask(ctx, question, k)

	e.qlog.Log(QueryLogEntry{
		Kind:          "ask",
		Query:         question,
		TopK:          k,
		ChunksFound:   ans.ChunksUsed,
		Degraded:      !e.Loaded(),
		Error:         ans.Error,
		Duration:      time.Since(start),
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	return ans
}

func (e *Engine) ask(ctx context.Context, question string, k int) *Answer {
	ans := &Answer{Question: question}
	fail := func(err error) *Answer {
		e.logger.WarnContext(ctx, "ask failed", "error", err)
		ans.Answer = apology + err.Error()
		ans.Error = err.Error()
		return ans
	}

	res, err := e.search(ctx, question, k)
	if err != nil {
		return fail(err)
	}
	ans.Context = res.Context
	ans.ChunksUsed = res.ChunksFound

	if !e.Loaded() {
		return fail(ErrIndexUnavailable)
	}
	if e.generator == nil {
		return fail(ErrNoGenerator)
	}

	gctx := ctx
	if e.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, e.opts.GenerateTimeout)
		defer cancel()
	}
	text, err := e.generator.Complete(gctx, SystemPrompt, UserPrompt(question, res.Context))
	if err != nil {
		return fail(err)
	}
	ans.Answer = text
	return ans
}

func topK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}
