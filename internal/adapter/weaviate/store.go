package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"voyagemate/apps/backend/internal/vector"
)

// Store mirrors entities into Weaviate, one class per collection.
// Object ids are derived from (collection, entity id) so re-indexing replaces in place.
type Store struct {
	client *weaviate.Client
	schema *vector.WeaviateClientAdapter
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client, schema: vector.NewWeaviateClientAdapter(client)}
}

// ObjectID is the deterministic Weaviate id for an entity document.
func ObjectID(collection string, id int64) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", collection, id))).String())
}

func (s *Store) Ping(ctx context.Context) error {
	return s.schema.Live(ctx)
}

func (s *Store) Exists(ctx context.Context, c vector.Collection) (bool, error) {
	return s.schema.ClassExists(ctx, c.Name)
}

func (s *Store) CreateCollection(ctx context.Context, c vector.Collection, dim int) error {
	return vector.EnsureCollection(ctx, s.schema, c, dim)
}

func (s *Store) object(collection string, d vector.Document) *models.Object {
	props := make(map[string]interface{}, len(d.Fields)+1)
	for k, v := range d.Fields {
		props[k] = v
	}
	props[vector.EntityIDProperty] = d.ID
	return &models.Object{
		Class:      collection,
		ID:         ObjectID(collection, d.ID),
		Properties: props,
		Vector:     d.Vector,
	}
}

// BulkUpsert writes docs in one batch request and returns one result per doc, in order.
// An error is returned only when the request itself failed.
func (s *Store) BulkUpsert(ctx context.Context, collection string, docs []vector.Document) ([]vector.WriteResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	objs := make([]*models.Object, len(docs))
	for i, d := range docs {
		objs[i] = s.object(collection, d)
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return nil, err
	}

	reasons := make(map[strfmt.UUID]string, len(resp))
	seen := make(map[strfmt.UUID]bool, len(resp))
	for _, r := range resp {
		seen[r.ID] = true
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			reason := r.Result.Errors.Error[0].Message
			if reason == "" {
				reason = "write rejected"
			}
			reasons[r.ID] = reason
		}
	}

	results := make([]vector.WriteResult, len(docs))
	for i, d := range docs {
		oid := objs[i].ID
		switch {
		case !seen[oid]:
			results[i] = vector.WriteResult{ID: d.ID, Reason: "missing from batch response"}
		case reasons[oid] != "":
			results[i] = vector.WriteResult{ID: d.ID, Reason: reasons[oid]}
		default:
			results[i] = vector.WriteResult{ID: d.ID, Written: true}
		}
	}
	return results, nil
}

func (s *Store) UpsertOne(ctx context.Context, collection string, doc vector.Document) error {
	res, err := s.BulkUpsert(ctx, collection, []vector.Document{doc})
	if err != nil {
		return err
	}
	if !res[0].Written {
		return errors.New(res[0].Reason)
	}
	return nil
}

func (s *Store) ExistsDoc(ctx context.Context, collection string, id int64) (bool, error) {
	return s.client.Data().Checker().
		WithClassName(collection).
		WithID(ObjectID(collection, id).String()).
		Do(ctx)
}

// DeleteOne reports false when the document was already gone.
func (s *Store) DeleteOne(ctx context.Context, collection string, id int64) (bool, error) {
	err := s.client.Data().Deleter().
		WithClassName(collection).
		WithID(ObjectID(collection, id).String()).
		Do(ctx)
	if err != nil {
		var werr *fault.WeaviateClientError
		if errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func scopeFilter(scope *vector.Scope) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{scope.Property}).
		WithOperator(filters.Equal).
		WithValueInt(scope.Value)
}

// Count returns the number of documents in collection, optionally narrowed by scope.
func (s *Store) Count(ctx context.Context, collection string, scope *vector.Scope) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(collection).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if scope != nil {
		agg = agg.WithWhere(scopeFilter(scope))
	}

	res, err := agg.Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	aggregate, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, errors.New("unexpected aggregate response")
	}
	rows, ok := aggregate[collection].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, errors.New("aggregate response has no count")
	}
	return int(count), nil
}

// SearchByVector returns the nearest documents by cosine similarity, best first.
func (s *Store) SearchByVector(ctx context.Context, collection string, vec []float32, limit int, scope *vector.Scope) ([]vector.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	get := s.client.GraphQL().Get().
		WithClassName(collection).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(
			graphql.Field{Name: vector.EntityIDProperty},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		)
	if scope != nil {
		get = get.WithWhere(scopeFilter(scope))
	}

	res, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	var hits []vector.Hit
	data, _ := res.Data["Get"].(map[string]interface{})
	objs, _ := data[collection].([]interface{})
	for _, o := range objs {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		id, ok := props[vector.EntityIDProperty].(float64)
		if !ok {
			continue
		}
		hit := vector.Hit{ID: int64(id)}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				hit.Score = float32(1 - d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
