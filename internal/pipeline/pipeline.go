package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voyagemate/apps/backend/internal/middleware"
)

const (
	DefaultBatchTimeout = 2 * time.Minute
	// DefaultCallTimeout bounds reachability checks, collection calls and the reconciliation count.
	DefaultCallTimeout = 30 * time.Second
)

type Options struct {
	// BatchSize overrides the descriptor's batch size when positive.
	BatchSize    int
	BatchTimeout time.Duration
	CallTimeout  time.Duration
	// Sink receives embedding and store_write failures and clears them once written. Optional.
	Sink FailureSink
}

// Pipeline is the one full-run and single-entity indexer, parametrized by an entity adapter.
type Pipeline[R any] struct {
	adapter  Adapter[R]
	desc     Descriptor
	embedder Embedder
	store    Store
	logger   *slog.Logger
	opts     Options
}

func New[R any](adapter Adapter[R], embedder Embedder, store Store, logger *slog.Logger, opts Options) *Pipeline[R] {
	desc := adapter.Descriptor()
	if opts.BatchSize > 0 {
		desc.BatchSize = opts.BatchSize
	}
	if desc.BatchSize <= 0 {
		desc.BatchSize = 32
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline[R]{
		adapter:  adapter,
		desc:     desc,
		embedder: embedder,
		store:    store,
		logger:   logger.With("entity", desc.Entity, "collection", desc.Collection.Name),
		opts:     opts,
	}
}

func (p *Pipeline[R]) Entity() string { return p.desc.Entity }

func (p *Pipeline[R]) Descriptor() Descriptor { return p.desc }

// init checks reachability of the store and the embedder. Failures here are fatal.
func (p *Pipeline[R]) init(ctx context.Context) error {
	if err := p.pingStore(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	if err := p.embedder.Ping(ctx); err != nil {
		return fmt.Errorf("%w: embedder %s: %w", ErrFatalConnectivity, p.embedder.ModelName(), err)
	}
	return nil
}

func (p *Pipeline[R]) pingStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: vector store: %w", ErrFatalConnectivity, err)
	}
	return nil
}

func (p *Pipeline[R]) ensureCollection(ctx context.Context, dim int) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	exists, err := p.store.Exists(ctx, p.desc.Collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %w", ErrFatalConnectivity, err)
	}
	if exists {
		return nil
	}
	if err := p.store.CreateCollection(ctx, p.desc.Collection, dim); err != nil {
		return fmt.Errorf("%w: create collection: %w", ErrFatalConnectivity, err)
	}
	p.logger.InfoContext(ctx, "collection created")
	return nil
}

func (p *Pipeline[R]) fetchAll(ctx context.Context) ([]R, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.BatchTimeout)
	defer cancel()
	records, err := p.adapter.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrFatalConnectivity, p.desc.Entity, err)
	}
	return records, nil
}

func (p *Pipeline[R]) reconcile(ctx context.Context, valid int, failures []FailureRecord) Reconciliation {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	return Reconcile(ctx, p.store, p.desc.Collection.Name, p.desc.Scope, valid, failures)
}

// Run executes a full extraction and returns the report. A non-nil error means the run
// aborted before any batch was processed; per-record problems only show up in the report.
func (p *Pipeline[R]) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.New().String()
	ctx = middleware.WithRunID(ctx, runID)

	report := &Report{RunID: runID, Entity: p.desc.Entity, Collection: p.desc.Collection.Name}

	if err := p.init(ctx); err != nil {
		return nil, err
	}
	report.Dimension = p.embedder.Dimensions()
	p.logger.InfoContext(ctx, "embedder ready", "model", p.embedder.ModelName(), "dimension", report.Dimension)

	if err := p.ensureCollection(ctx, report.Dimension); err != nil {
		return nil, err
	}

	records, err := p.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	report.Original = len(records)
	if len(records) == 0 {
		p.logger.WarnContext(ctx, "source returned no records")
	}

	items := make([]item[R], 0, len(records))
	for _, r := range records {
		id := p.adapter.ID(r)
		text := p.adapter.Compose(r)
		v := Validate(p.desc.PrimaryField, p.adapter.Subject(r), text, MinComposedLength)
		if !v.Valid {
			report.Rejections = append(report.Rejections, FailureRecord{ID: id, Stage: StageValidation, Reason: v.Reason})
			continue
		}
		items = append(items, item[R]{id: id, record: r, text: text})
	}
	report.Valid = len(items)
	report.Invalid = len(report.Rejections)
	p.logger.InfoContext(ctx, "validation finished", "valid", report.Valid, "invalid", report.Invalid)

	size := p.desc.BatchSize
	total := (len(items) + size - 1) / size
	for i := 0; i < len(items); i += size {
		b := &batch[R]{number: i/size + 1, items: items[i:min(i+size, len(items))], state: StateComposed}
		res := p.process(ctx, b)
		p.logBatch(ctx, total, res)

		report.Batches = append(report.Batches, res)
		report.Indexed += res.Indexed
		report.Failures = append(report.Failures, res.Failures...)
		p.sink(ctx, res.Failures)
		p.resolve(ctx, res.Written...)
	}

	report.Reconciliation = p.reconcile(ctx, report.Valid, report.Failures)
	if rec := report.Reconciliation; rec.Err != nil {
		p.logger.ErrorContext(ctx, "reconciliation count failed", "error", rec.Err)
	} else if !rec.Reconciled {
		p.logger.WarnContext(ctx, "index count mismatch", "expected", rec.Expected, "actual", rec.Actual, "failures", rec.TotalFailures)
	}

	report.Elapsed = time.Since(start)
	p.logger.InfoContext(ctx, "run finished",
		"original", report.Original,
		"indexed", report.Indexed,
		"failed", report.Failed(),
		"elapsed", report.Elapsed)
	return report, nil
}

func (p *Pipeline[R]) sink(ctx context.Context, failures []FailureRecord) {
	if p.opts.Sink == nil {
		return
	}
	for _, f := range failures {
		if err := p.opts.Sink.Record(ctx, p.desc.Entity, f); err != nil {
			p.logger.WarnContext(ctx, "failed to record failure", "id", f.ID, "error", err)
		}
	}
}

// resolve clears ledger entries for records that are now in the index.
func (p *Pipeline[R]) resolve(ctx context.Context, ids ...int64) {
	if p.opts.Sink == nil || len(ids) == 0 {
		return
	}
	if err := p.opts.Sink.Resolve(ctx, p.desc.Entity, ids); err != nil {
		p.logger.WarnContext(ctx, "failed to clear recorded failures", "count", len(ids), "error", err)
	}
}
