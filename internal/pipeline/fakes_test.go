package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/vector"
)

type place struct {
	ID          int64
	Name        string
	Description string
	RegionID    int64
}

type placeAdapter struct {
	rows      []place
	fetchErr  error
	batchSize int
	scope     *vector.Scope
}

func (a *placeAdapter) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Entity: "places",
		Collection: vector.Collection{
			Name: "Place",
			Fields: []vector.Field{
				{Name: "name", Kind: vector.KindText},
				{Name: "description", Kind: vector.KindText},
				{Name: "regionId", Kind: vector.KindInt},
			},
		},
		PrimaryField: "name",
		BatchSize:    a.batchSize,
		Scope:        a.scope,
	}
}

func (a *placeAdapter) FetchAll(ctx context.Context) ([]place, error) {
	return a.rows, a.fetchErr
}

func (a *placeAdapter) FetchOne(ctx context.Context, id int64) (place, error) {
	for _, r := range a.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return place{}, fmt.Errorf("place %d: %w", id, pipeline.ErrNotFound)
}

func (a *placeAdapter) ID(r place) int64 { return r.ID }

func (a *placeAdapter) Subject(r place) pipeline.Subject {
	return pipeline.Subject{Primary: r.Name, Scanned: []string{r.Name, r.Description}}
}

func (a *placeAdapter) Compose(r place) string {
	var parts []string
	for _, s := range []string{r.Name, r.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func (a *placeAdapter) Fields(r place) map[string]any {
	return map[string]any{"name": r.Name, "description": r.Description, "regionId": r.RegionID}
}

func places(n int) []place {
	out := make([]place, n)
	for i := range out {
		out[i] = place{ID: int64(i + 1), Name: fmt.Sprintf("place %d", i+1), Description: "a quiet town"}
	}
	return out
}

type fakeEmbedder struct {
	mu      sync.Mutex
	dim     int
	pingErr error
	// failCalls makes the n-th EmbedBatch call (1-based) fail.
	failCalls map[int]error
	calls     int
	seen      []string
}

func newFakeEmbedder() *fakeEmbedder { return &fakeEmbedder{dim: 4} }

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if err := e.failCalls[e.calls]; err != nil {
		return nil, err
	}
	e.seen = append(e.seen, texts...)
	out := make([][]float32, len(texts))
	for i := range out {
		v := make([]float32, e.dim)
		v[i%e.dim] = 1
		out[i] = v
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int                { return e.dim }
func (e *fakeEmbedder) ModelName() string              { return "fake-embedding" }
func (e *fakeEmbedder) Ping(ctx context.Context) error { return e.pingErr }

// memStore is an in-memory vector-document store keyed by collection and entity id.
type memStore struct {
	mu          sync.Mutex
	collections map[string]int
	docs        map[string]map[int64]vector.Document
	pingErr     error
	// blockPing makes Ping hang until its context ends.
	blockPing   bool
	bulkErr     error
	countErr    error
	rejectIDs   map[int64]string
	bulkCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		collections: map[string]int{},
		docs:        map[string]map[int64]vector.Document{},
		rejectIDs:   map[int64]string{},
	}
}

func (s *memStore) Ping(ctx context.Context) error {
	if s.blockPing {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.pingErr
}

func (s *memStore) Exists(ctx context.Context, c vector.Collection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[c.Name]
	return ok, nil
}

func (s *memStore) CreateCollection(ctx context.Context, c vector.Collection, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[c.Name] = dim
	s.docs[c.Name] = map[int64]vector.Document{}
	return nil
}

func (s *memStore) BulkUpsert(ctx context.Context, collection string, docs []vector.Document) ([]vector.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkCalls++
	if s.bulkErr != nil {
		return nil, s.bulkErr
	}
	out := make([]vector.WriteResult, len(docs))
	for i, d := range docs {
		if reason, ok := s.rejectIDs[d.ID]; ok {
			out[i] = vector.WriteResult{ID: d.ID, Reason: reason}
			continue
		}
		s.docs[collection][d.ID] = d
		out[i] = vector.WriteResult{ID: d.ID, Written: true}
	}
	return out, nil
}

func (s *memStore) UpsertOne(ctx context.Context, collection string, doc vector.Document) error {
	res, err := s.BulkUpsert(ctx, collection, []vector.Document{doc})
	if err != nil {
		return err
	}
	if !res[0].Written {
		return errors.New(res[0].Reason)
	}
	return nil
}

func (s *memStore) DeleteOne(ctx context.Context, collection string, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return false, nil
	}
	delete(s.docs[collection], id)
	return true, nil
}

func (s *memStore) ExistsDoc(ctx context.Context, collection string, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[collection][id]
	return ok, nil
}

func (s *memStore) Count(ctx context.Context, collection string, scope *vector.Scope) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, d := range s.docs[collection] {
		if scope != nil && d.Fields[scope.Property] != scope.Value {
			continue
		}
		n++
	}
	return n, nil
}

type recordingSink struct {
	mu       sync.Mutex
	entries  []pipeline.FailureRecord
	resolved []int64
}

func (r *recordingSink) Record(ctx context.Context, entity string, f pipeline.FailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, f)
	return nil
}

func (r *recordingSink) Resolve(ctx context.Context, entity string, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, ids...)
	return nil
}
