package entity

import (
	"context"
	"fmt"

	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/vector"
)

const Attractions = "attractions"

type AttractionSource interface {
	ListAttractions(ctx context.Context, destinationID int64) ([]source.Attraction, error)
	GetAttraction(ctx context.Context, id int64) (source.Attraction, error)
}

var attractionCollection = vector.Collection{
	Name:        "Attraction",
	Description: "Attractions, scoped by destination",
	Fields: []vector.Field{
		{Name: "name", Kind: vector.KindText},
		{Name: "description", Kind: vector.KindText},
		{Name: "category", Kind: vector.KindKeyword},
		{Name: "latitude", Kind: vector.KindNumber},
		{Name: "longitude", Kind: vector.KindNumber},
		{Name: "joinCount", Kind: vector.KindInt},
		{Name: "tagScores", Kind: vector.KindText},
		{Name: "destinationId", Kind: vector.KindInt},
		{Name: "destinationName", Kind: vector.KindText},
	},
}

// AttractionAdapter indexes the attractions of one destination. The single-entity
// path looks attractions up by their own id and ignores the destination.
type AttractionAdapter struct {
	src           AttractionSource
	destinationID int64
}

func NewAttractionAdapter(src AttractionSource, destinationID int64) *AttractionAdapter {
	return &AttractionAdapter{src: src, destinationID: destinationID}
}

func (a *AttractionAdapter) Descriptor() pipeline.Descriptor {
	d := pipeline.Descriptor{
		Entity:       Attractions,
		Collection:   attractionCollection,
		PrimaryField: "name",
		BatchSize:    64,
	}
	if a.destinationID > 0 {
		d.Scope = &vector.Scope{Property: "destinationId", Value: a.destinationID}
	}
	return d
}

func (a *AttractionAdapter) FetchAll(ctx context.Context) ([]source.Attraction, error) {
	if a.destinationID <= 0 {
		return nil, fmt.Errorf("attractions: %w", ErrDestinationRequired)
	}
	return a.src.ListAttractions(ctx, a.destinationID)
}

func (a *AttractionAdapter) FetchOne(ctx context.Context, id int64) (source.Attraction, error) {
	at, err := a.src.GetAttraction(ctx, id)
	return at, notFound(err)
}

func (a *AttractionAdapter) ID(at source.Attraction) int64 { return at.ID }

func (a *AttractionAdapter) Subject(at source.Attraction) pipeline.Subject {
	return pipeline.Subject{Primary: at.Name, Scanned: []string{at.Name, str(at.Description)}}
}

// Compose: name, description, category, destination name.
func (a *AttractionAdapter) Compose(at source.Attraction) string {
	c := &composer{}
	return c.add(at.Name).addNull(at.Description).addNull(at.Category).addNull(at.DestinationName).String()
}

func (a *AttractionAdapter) Fields(at source.Attraction) map[string]any {
	f := map[string]any{
		"name":            at.Name,
		"description":     str(at.Description),
		"category":        str(at.Category),
		"joinCount":       at.JoinCount.Int64,
		"tagScores":       str(at.TagScores),
		"destinationId":   at.DestinationID,
		"destinationName": str(at.DestinationName),
	}
	if at.Latitude.Valid {
		f["latitude"] = at.Latitude.Float64
	}
	if at.Longitude.Valid {
		f["longitude"] = at.Longitude.Float64
	}
	return f
}
