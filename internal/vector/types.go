package vector

import "math"

// Kind is the storage type of a document property.
type Kind string

const (
	KindText    Kind = "text"
	KindKeyword Kind = "keyword"
	KindInt     Kind = "int"
	KindNumber  Kind = "number"
	KindDate    Kind = "date"
)

type Field struct {
	Name string
	Kind Kind
}

// Collection describes one entity type's document class in the store.
type Collection struct {
	Name        string
	Description string
	Fields      []Field
}

// Scope narrows a collection to the documents whose integer property equals Value.
type Scope struct {
	Property string
	Value    int64
}

// Document is one entity mirrored into the store. ID is the source entity id.
type Document struct {
	ID     int64
	Fields map[string]any
	Vector []float32
}

// WriteResult is the per-document outcome of a bulk upsert: Written, or WriteFailed with Reason.
type WriteResult struct {
	ID      int64
	Written bool
	Reason  string
}

// Hit is a nearest-neighbour match against a live collection.
type Hit struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"`
}

// Normalize scales v to unit length in place. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}
