package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const destinationColumns = `SELECT id, name, description FROM destinations`

func scanDestination(s scanner) (Destination, error) {
	var d Destination
	err := s.Scan(&d.ID, &d.Name, &d.Description)
	return d, err
}

func (r *PostgresRepo) ListDestinations(ctx context.Context) ([]Destination, error) {
	return list(ctx, r.db, destinationColumns+` ORDER BY id`, scanDestination)
}

func (r *PostgresRepo) GetDestination(ctx context.Context, id int64) (Destination, error) {
	return one(ctx, r.db, destinationColumns+` WHERE id = $1`, scanDestination, id)
}

const attractionColumns = `SELECT a.id, a.name, a.description, a.category, a.latitude, a.longitude,
	a.join_count, a.tag_scores, a.destination_id, d.name AS destination_name
FROM attractions a
JOIN destinations d ON a.destination_id = d.id`

func scanAttraction(s scanner) (Attraction, error) {
	var a Attraction
	err := s.Scan(&a.ID, &a.Name, &a.Description, &a.Category, &a.Latitude, &a.Longitude,
		&a.JoinCount, &a.TagScores, &a.DestinationID, &a.DestinationName)
	return a, err
}

// ListAttractions returns the attractions of one destination, most joined first.
func (r *PostgresRepo) ListAttractions(ctx context.Context, destinationID int64) ([]Attraction, error) {
	return list(ctx, r.db, attractionColumns+`
WHERE a.destination_id = $1
ORDER BY a.join_count DESC NULLS LAST, a.id`, scanAttraction, destinationID)
}

func (r *PostgresRepo) GetAttraction(ctx context.Context, id int64) (Attraction, error) {
	return one(ctx, r.db, attractionColumns+`
WHERE a.id = $1`, scanAttraction, id)
}

const communityEntrySelect = `SELECT ce.id, ce.share_code, ce.description, ce.view_count, ce.created_at, ce.updated_at,
	i.title AS itinerary_title, i.start_date, i.end_date,
	string_agg(DISTINCT d.name, ', ') AS destinations,
	u.username AS author_username, u.id AS author_id,
	string_agg(DISTINCT t.tag, ', ') AS tags
FROM community_entries ce
JOIN itineraries i ON ce.itinerary_id = i.id
JOIN "user" u ON i.user_id = u.id
LEFT JOIN itinerary_days iday ON i.id = iday.itinerary_id
LEFT JOIN itinerary_activities ia ON iday.id = ia.itinerary_day_id
LEFT JOIN attractions a ON ia.attraction_id = a.id
LEFT JOIN destinations d ON a.destination_id = d.id
LEFT JOIN community_entry_tags cet ON ce.id = cet.share_entry_id
LEFT JOIN tags t ON cet.tag_id = t.id
WHERE i.permission_status = $1`

const communityEntryGroup = `
GROUP BY ce.id, ce.share_code, ce.description, ce.view_count, ce.created_at, ce.updated_at,
	i.title, i.start_date, i.end_date, u.username, u.id`

func scanCommunityEntry(s scanner) (CommunityEntry, error) {
	var e CommunityEntry
	err := s.Scan(&e.ID, &e.ShareCode, &e.Description, &e.ViewCount, &e.CreatedAt, &e.UpdatedAt,
		&e.ItineraryTitle, &e.StartDate, &e.EndDate, &e.Destinations, &e.AuthorUsername, &e.AuthorID, &e.Tags)
	return e, err
}

// ListCommunityEntries returns publicly visible entries, newest first.
func (r *PostgresRepo) ListCommunityEntries(ctx context.Context) ([]CommunityEntry, error) {
	return list(ctx, r.db, communityEntrySelect+communityEntryGroup+`
ORDER BY ce.created_at DESC`, scanCommunityEntry, PublicPermission)
}

// GetCommunityEntry returns ErrNotFound when the entry is missing or its itinerary is not public.
func (r *PostgresRepo) GetCommunityEntry(ctx context.Context, id int64) (CommunityEntry, error) {
	return one(ctx, r.db, communityEntrySelect+` AND ce.id = $2`+communityEntryGroup, scanCommunityEntry, PublicPermission, id)
}

const authorSelect = `SELECT u.id, u.username, u.email, u.created_at, u.updated_at,
	COUNT(DISTINCT i.id) AS itinerary_count,
	COUNT(DISTINCT ce.id) AS community_entry_count,
	(SELECT COALESCE(SUM(ce2.view_count), 0)
		FROM community_entries ce2
		JOIN itineraries i2 ON ce2.itinerary_id = i2.id
		WHERE i2.user_id = u.id) AS total_views,
	string_agg(DISTINCT d.name, ', ') AS visited_destinations
FROM "user" u
LEFT JOIN itineraries i ON u.id = i.user_id
LEFT JOIN community_entries ce ON i.id = ce.itinerary_id
LEFT JOIN itinerary_days iday ON i.id = iday.itinerary_id
LEFT JOIN itinerary_activities ia ON iday.id = ia.itinerary_day_id
LEFT JOIN attractions a ON ia.attraction_id = a.id
LEFT JOIN destinations d ON a.destination_id = d.id`

const authorGroup = `
GROUP BY u.id, u.username, u.email, u.created_at, u.updated_at
HAVING COUNT(DISTINCT i.id) > 0 OR COUNT(DISTINCT ce.id) > 0`

func scanAuthor(s scanner) (Author, error) {
	var a Author
	err := s.Scan(&a.ID, &a.Username, &a.Email, &a.CreatedAt, &a.UpdatedAt,
		&a.ItineraryCount, &a.CommunityEntryCount, &a.TotalViews, &a.VisitedDestinations)
	return a, err
}

// ListAuthors returns users with at least one itinerary or shared entry.
func (r *PostgresRepo) ListAuthors(ctx context.Context) ([]Author, error) {
	return list(ctx, r.db, authorSelect+authorGroup+`
ORDER BY total_views DESC, itinerary_count DESC`, scanAuthor)
}

func (r *PostgresRepo) GetAuthor(ctx context.Context, id int64) (Author, error) {
	return one(ctx, r.db, authorSelect+`
WHERE u.id = $1`+authorGroup, scanAuthor, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func list[T any](ctx context.Context, db *sql.DB, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func one[T any](ctx context.Context, db *sql.DB, query string, scan func(scanner) (T, error), args ...any) (T, error) {
	v, err := scan(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return v, fmt.Errorf("%w: id %v", ErrNotFound, args[len(args)-1])
	}
	return v, err
}
