package entity

import (
	"context"

	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/vector"
)

const CommunityEntries = "community_entries"

type CommunityEntrySource interface {
	ListCommunityEntries(ctx context.Context) ([]source.CommunityEntry, error)
	GetCommunityEntry(ctx context.Context, id int64) (source.CommunityEntry, error)
}

var communityEntryCollection = vector.Collection{
	Name:        "CommunityEntry",
	Description: "Publicly shared itineraries",
	Fields: []vector.Field{
		{Name: "shareCode", Kind: vector.KindKeyword},
		{Name: "description", Kind: vector.KindText},
		{Name: "viewCount", Kind: vector.KindInt},
		{Name: "createdAt", Kind: vector.KindDate},
		{Name: "updatedAt", Kind: vector.KindDate},
		{Name: "itineraryTitle", Kind: vector.KindText},
		{Name: "startDate", Kind: vector.KindDate},
		{Name: "endDate", Kind: vector.KindDate},
		{Name: "destinations", Kind: vector.KindText},
		{Name: "authorUsername", Kind: vector.KindText},
		{Name: "authorId", Kind: vector.KindInt},
		{Name: "tags", Kind: vector.KindText},
	},
}

type CommunityEntryAdapter struct {
	src CommunityEntrySource
}

func NewCommunityEntryAdapter(src CommunityEntrySource) *CommunityEntryAdapter {
	return &CommunityEntryAdapter{src: src}
}

func (a *CommunityEntryAdapter) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Entity:       CommunityEntries,
		Collection:   communityEntryCollection,
		PrimaryField: "title",
		BatchSize:    32,
	}
}

func (a *CommunityEntryAdapter) FetchAll(ctx context.Context) ([]source.CommunityEntry, error) {
	return a.src.ListCommunityEntries(ctx)
}

func (a *CommunityEntryAdapter) FetchOne(ctx context.Context, id int64) (source.CommunityEntry, error) {
	e, err := a.src.GetCommunityEntry(ctx, id)
	return e, notFound(err)
}

func (a *CommunityEntryAdapter) ID(e source.CommunityEntry) int64 { return e.ID }

func (a *CommunityEntryAdapter) Subject(e source.CommunityEntry) pipeline.Subject {
	return pipeline.Subject{
		Primary: str(e.ItineraryTitle),
		Scanned: []string{str(e.ItineraryTitle), str(e.Description)},
	}
}

// Compose: title, description, then the labeled author, destinations and tags.
func (a *CommunityEntryAdapter) Compose(e source.CommunityEntry) string {
	c := &composer{}
	return c.addNull(e.ItineraryTitle).
		addNull(e.Description).
		labeled("author", e.AuthorUsername).
		labeled("destinations", e.Destinations).
		labeled("tags", e.Tags).
		String()
}

func (a *CommunityEntryAdapter) Fields(e source.CommunityEntry) map[string]any {
	return map[string]any{
		"shareCode":      str(e.ShareCode),
		"description":    str(e.Description),
		"viewCount":      e.ViewCount.Int64,
		"createdAt":      date(e.CreatedAt),
		"updatedAt":      date(e.UpdatedAt),
		"itineraryTitle": str(e.ItineraryTitle),
		"startDate":      date(e.StartDate),
		"endDate":        date(e.EndDate),
		"destinations":   str(e.Destinations),
		"authorUsername": str(e.AuthorUsername),
		"authorId":       e.AuthorID,
		"tags":           str(e.Tags),
	}
}
