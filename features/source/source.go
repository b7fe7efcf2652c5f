package source

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned by single-row lookups that match no visible row.
var ErrNotFound = errors.New("source record not found")

// PublicPermission is the itinerary permission value that makes a community entry visible.
const PublicPermission = "所有人可见"

type Destination struct {
	ID          int64
	Name        string
	Description sql.NullString
}

type Attraction struct {
	ID              int64
	Name            string
	Description     sql.NullString
	Category        sql.NullString
	Latitude        sql.NullFloat64
	Longitude       sql.NullFloat64
	JoinCount       sql.NullInt64
	TagScores       sql.NullString
	DestinationID   int64
	DestinationName sql.NullString
}

// CommunityEntry is a shared itinerary joined with its author, destinations and tags.
type CommunityEntry struct {
	ID             int64
	ShareCode      sql.NullString
	Description    sql.NullString
	ViewCount      sql.NullInt64
	CreatedAt      sql.NullTime
	UpdatedAt      sql.NullTime
	ItineraryTitle sql.NullString
	StartDate      sql.NullTime
	EndDate        sql.NullTime
	// Destinations and Tags are comma-joined.
	Destinations   sql.NullString
	AuthorUsername sql.NullString
	AuthorID       int64
	Tags           sql.NullString
}

type Author struct {
	ID                  int64
	Username            sql.NullString
	Email               sql.NullString
	CreatedAt           sql.NullTime
	UpdatedAt           sql.NullTime
	ItineraryCount      int64
	CommunityEntryCount int64
	TotalViews          int64
	VisitedDestinations sql.NullString
}
