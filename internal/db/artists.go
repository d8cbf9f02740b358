package db

import (
	"context"
	"fmt"
)

// ArtistRepository handles artist database operations.
type ArtistRepository struct {
	q Querier
}

// GetOrCreate returns the row ID for spotifyID, inserting the artist if it does not exist.
// An existing row is returned untouched.
func (r *ArtistRepository) GetOrCreate(ctx context.Context, spotifyID, name string) (int64, error) {
	query := `
		INSERT INTO artists (spotify_id, name)
		VALUES ($1, $2)
		ON CONFLICT (spotify_id) DO UPDATE SET spotify_id = EXCLUDED.spotify_id
		RETURNING id
	`
	var id int64
	if err := r.q.QueryRow(ctx, query, spotifyID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("get-or-create artist %s: %w", spotifyID, err)
	}
	return id, nil
}

// InsertBatch inserts artists that are not stored yet. Existing rows are left alone.
func (r *ArtistRepository) InsertBatch(ctx context.Context, artists []Artist) error {
	if len(artists) == 0 {
		return nil
	}

	query := `
		INSERT INTO artists (spotify_id, name, genres, followers, popularity, image_url)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::int[], $5::int[], $6::text[])
		ON CONFLICT (spotify_id) DO NOTHING
	`

	ids := make([]string, len(artists))
	names := make([]string, len(artists))
	genres := make([]string, len(artists))
	followers := make([]*int, len(artists))
	popularity := make([]*int, len(artists))
	images := make([]string, len(artists))

	for i, a := range artists {
		ids[i] = a.SpotifyID
		names[i] = a.Name
		genres[i] = a.Genres
		followers[i] = a.Followers
		popularity[i] = a.Popularity
		images[i] = a.ImageURL
	}

	_, err := r.q.Exec(ctx, query, ids, names, genres, followers, popularity, images)
	if err != nil {
		return fmt.Errorf("batch inserting artists: %w", err)
	}
	return nil
}

// Missing returns artist Spotify IDs referenced by albums that have no artist row.
func (r *ArtistRepository) Missing(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT al.artist_spotify_id
		FROM albums al
		LEFT JOIN artists ar ON ar.spotify_id = al.artist_spotify_id
		WHERE al.artist_spotify_id <> '' AND ar.id IS NULL
		ORDER BY al.artist_spotify_id
	`
	ids, err := collectStrings(ctx, r.q, query)
	if err != nil {
		return nil, fmt.Errorf("finding missing artists: %w", err)
	}
	return ids, nil
}
