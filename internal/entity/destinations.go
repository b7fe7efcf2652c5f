package entity

import (
	"context"

	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/vector"
)

const Destinations = "destinations"

type DestinationSource interface {
	ListDestinations(ctx context.Context) ([]source.Destination, error)
	GetDestination(ctx context.Context, id int64) (source.Destination, error)
}

var destinationCollection = vector.Collection{
	Name:        "Destination",
	Description: "Travel destinations",
	Fields: []vector.Field{
		{Name: "name", Kind: vector.KindText},
		{Name: "description", Kind: vector.KindText},
	},
}

type DestinationAdapter struct {
	src DestinationSource
}

func NewDestinationAdapter(src DestinationSource) *DestinationAdapter {
	return &DestinationAdapter{src: src}
}

func (a *DestinationAdapter) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Entity:       Destinations,
		Collection:   destinationCollection,
		PrimaryField: "name",
		BatchSize:    64,
	}
}

func (a *DestinationAdapter) FetchAll(ctx context.Context) ([]source.Destination, error) {
	return a.src.ListDestinations(ctx)
}

func (a *DestinationAdapter) FetchOne(ctx context.Context, id int64) (source.Destination, error) {
	d, err := a.src.GetDestination(ctx, id)
	return d, notFound(err)
}

func (a *DestinationAdapter) ID(d source.Destination) int64 { return d.ID }

func (a *DestinationAdapter) Subject(d source.Destination) pipeline.Subject {
	return pipeline.Subject{Primary: d.Name, Scanned: []string{d.Name, str(d.Description)}}
}

func (a *DestinationAdapter) Compose(d source.Destination) string {
	c := &composer{}
	return c.add(d.Name).addNull(d.Description).String()
}

func (a *DestinationAdapter) Fields(d source.Destination) map[string]any {
	return map[string]any{
		"name":        d.Name,
		"description": str(d.Description),
	}
}
