package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"voyagemate/apps/backend/internal/vector"
)

// BatchState follows COMPOSED -> EMBEDDED -> SUBMITTED -> {PARTIAL_FAILURE | COMPLETE}.
type BatchState int

const (
	StateComposed BatchState = iota
	StateEmbedded
	StateSubmitted
	StatePartialFailure
	StateComplete
)

func (s BatchState) String() string {
	switch s {
	case StateComposed:
		return "COMPOSED"
	case StateEmbedded:
		return "EMBEDDED"
	case StateSubmitted:
		return "SUBMITTED"
	case StatePartialFailure:
		return "PARTIAL_FAILURE"
	case StateComplete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

type item[R any] struct {
	id     int64
	record R
	text   string
}

// embedOutcome is Embedded (vectors set) or EmbedFailed (reason set).
type embedOutcome struct {
	vectors [][]float32
	reason  string
}

func (o embedOutcome) failed() bool { return o.reason != "" }

// BatchResult is what one batch contributes to the run report.
type BatchResult struct {
	Number   int
	Size     int
	State    BatchState
	Indexed  int
	Written  []int64
	Failures []FailureRecord
}

type batch[R any] struct {
	number int
	items  []item[R]
	state  BatchState
}

func (b *batch[R]) texts() []string {
	out := make([]string, len(b.items))
	for i, it := range b.items {
		out[i] = it.text
	}
	return out
}

func (b *batch[R]) failAll(stage Stage, reason string) []FailureRecord {
	out := make([]FailureRecord, len(b.items))
	for i, it := range b.items {
		out[i] = FailureRecord{ID: it.id, Stage: stage, Reason: reason}
	}
	return out
}

func (p *Pipeline[R]) embed(ctx context.Context, b *batch[R]) embedOutcome {
	vecs, err := p.embedder.EmbedBatch(ctx, b.texts())
	if err != nil {
		return embedOutcome{reason: err.Error()}
	}
	if len(vecs) != len(b.items) {
		return embedOutcome{reason: fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(b.items))}
	}
	dim := p.embedder.Dimensions()
	for _, v := range vecs {
		if dim > 0 && len(v) != dim {
			return embedOutcome{reason: fmt.Sprintf("vector dimension %d, want %d", len(v), dim)}
		}
	}
	return embedOutcome{vectors: vecs}
}

// process drives one batch through the state machine. It never returns an error:
// every failure becomes a FailureRecord.
func (p *Pipeline[R]) process(ctx context.Context, b *batch[R]) BatchResult {
	res := BatchResult{Number: b.number, Size: len(b.items)}
	collection := p.desc.Collection.Name

	ctx, cancel := context.WithTimeout(ctx, p.opts.BatchTimeout)
	defer cancel()

	emb := p.embed(ctx, b)
	if emb.failed() {
		b.state = StatePartialFailure
		res.State = b.state
		res.Failures = b.failAll(StageEmbedding, emb.reason)
		return res
	}
	b.state = StateEmbedded

	docs := make([]vector.Document, len(b.items))
	for i, it := range b.items {
		docs[i] = vector.Document{ID: it.id, Fields: p.adapter.Fields(it.record), Vector: emb.vectors[i]}
	}

	results, err := p.store.BulkUpsert(ctx, collection, docs)
	b.state = StateSubmitted
	if err != nil {
		b.state = StatePartialFailure
		res.State = b.state
		res.Failures = b.failAll(StageStoreWrite, err.Error())
		return res
	}

	for _, r := range results {
		if r.Written {
			res.Indexed++
			res.Written = append(res.Written, r.ID)
			continue
		}
		res.Failures = append(res.Failures, FailureRecord{ID: r.ID, Stage: StageStoreWrite, Reason: r.Reason})
	}

	if len(res.Failures) == 0 {
		b.state = StateComplete
	} else {
		b.state = StatePartialFailure
	}
	res.State = b.state
	return res
}

func (p *Pipeline[R]) logBatch(ctx context.Context, total int, r BatchResult) {
	level := slog.LevelInfo
	if r.State != StateComplete {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "batch finished",
		"batch", r.Number,
		"batches", total,
		"state", r.State.String(),
		"indexed", r.Indexed,
		"size", r.Size,
		"failed", len(r.Failures))
}
