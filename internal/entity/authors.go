package entity

import (
	"context"
	"fmt"

	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/vector"
)

const Authors = "authors"

type AuthorSource interface {
	ListAuthors(ctx context.Context) ([]source.Author, error)
	GetAuthor(ctx context.Context, id int64) (source.Author, error)
}

var authorCollection = vector.Collection{
	Name:        "Author",
	Description: "Itinerary authors",
	Fields: []vector.Field{
		{Name: "username", Kind: vector.KindText},
		{Name: "email", Kind: vector.KindKeyword},
		{Name: "createdAt", Kind: vector.KindDate},
		{Name: "updatedAt", Kind: vector.KindDate},
		{Name: "itineraryCount", Kind: vector.KindInt},
		{Name: "communityEntryCount", Kind: vector.KindInt},
		{Name: "totalViews", Kind: vector.KindInt},
		{Name: "visitedDestinations", Kind: vector.KindText},
	},
}

type AuthorAdapter struct {
	src AuthorSource
}

func NewAuthorAdapter(src AuthorSource) *AuthorAdapter {
	return &AuthorAdapter{src: src}
}

func (a *AuthorAdapter) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		Entity:       Authors,
		Collection:   authorCollection,
		PrimaryField: "username",
		BatchSize:    32,
	}
}

func (a *AuthorAdapter) FetchAll(ctx context.Context) ([]source.Author, error) {
	return a.src.ListAuthors(ctx)
}

func (a *AuthorAdapter) FetchOne(ctx context.Context, id int64) (source.Author, error) {
	au, err := a.src.GetAuthor(ctx, id)
	return au, notFound(err)
}

func (a *AuthorAdapter) ID(au source.Author) int64 { return au.ID }

func (a *AuthorAdapter) Subject(au source.Author) pipeline.Subject {
	return pipeline.Subject{Primary: str(au.Username), Scanned: []string{str(au.Username)}}
}

// Compose labels every part; counts appear only when positive.
func (a *AuthorAdapter) Compose(au source.Author) string {
	c := &composer{}
	c.labeled("author", au.Username).labeled("visited", au.VisitedDestinations)
	if au.ItineraryCount > 0 {
		c.add(fmt.Sprintf("itineraries: %d", au.ItineraryCount))
	}
	if au.CommunityEntryCount > 0 {
		c.add(fmt.Sprintf("shared: %d", au.CommunityEntryCount))
	}
	return c.String()
}

func (a *AuthorAdapter) Fields(au source.Author) map[string]any {
	return map[string]any{
		"username":            str(au.Username),
		"email":               str(au.Email),
		"createdAt":           date(au.CreatedAt),
		"updatedAt":           date(au.UpdatedAt),
		"itineraryCount":      au.ItineraryCount,
		"communityEntryCount": au.CommunityEntryCount,
		"totalViews":          au.TotalViews,
		"visitedDestinations": str(au.VisitedDestinations),
	}
}
