package pipeline

import (
	"context"

	"voyagemate/apps/backend/internal/vector"
)

type Stage string

const (
	StageValidation Stage = "validation"
	StageEmbedding  Stage = "embedding"
	StageStoreWrite Stage = "store_write"
)

// FailureRecord always carries a reason.
type FailureRecord struct {
	ID     int64  `json:"id"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// Descriptor is the static shape of one entity type.
type Descriptor struct {
	Entity     string
	Collection vector.Collection
	// PrimaryField names the required text field in rejection reasons.
	PrimaryField string
	BatchSize    int
	Scope        *vector.Scope
}

// Subject is what the Validator inspects besides the composed text.
type Subject struct {
	Primary string
	Scanned []string
}

// Adapter binds one entity type to the generic pipeline.
type Adapter[R any] interface {
	Descriptor() Descriptor
	FetchAll(ctx context.Context) ([]R, error)
	// FetchOne returns ErrNotFound when id is absent or fails the visibility predicate.
	FetchOne(ctx context.Context, id int64) (R, error)
	ID(r R) int64
	Subject(r R) Subject
	Compose(r R) string
	Fields(r R) map[string]any
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Ping(ctx context.Context) error
}

type Store interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, c vector.Collection) (bool, error)
	CreateCollection(ctx context.Context, c vector.Collection, dim int) error
	BulkUpsert(ctx context.Context, collection string, docs []vector.Document) ([]vector.WriteResult, error)
	UpsertOne(ctx context.Context, collection string, doc vector.Document) error
	DeleteOne(ctx context.Context, collection string, id int64) (bool, error)
	ExistsDoc(ctx context.Context, collection string, id int64) (bool, error)
	Count(ctx context.Context, collection string, scope *vector.Scope) (int, error)
}

// FailureSink persists retryable failures outside the run.
type FailureSink interface {
	Record(ctx context.Context, entity string, f FailureRecord) error
	// Resolve drops entries for ids that were since written or deleted.
	Resolve(ctx context.Context, entity string, ids []int64) error
}

// Runner is the type-erased face of a Pipeline, used by the CLI, HTTP handlers and workers.
type Runner interface {
	Entity() string
	Run(ctx context.Context) (*Report, error)
	IndexOne(ctx context.Context, id int64) (bool, error)
	DeleteOne(ctx context.Context, id int64) (bool, error)
}
