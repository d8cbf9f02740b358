package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Enrichment identifies one of the per-album backfill passes.
type Enrichment string

const (
	EnrichGenres Enrichment = "genres"
	EnrichColors Enrichment = "colors"
)

// column maps an enrichment to its timestamp column. Only these names ever reach SQL text.
func (e Enrichment) column() (string, error) {
	switch e {
	case EnrichGenres:
		return "fetched_genres_date", nil
	case EnrichColors:
		return "fetched_colors_date", nil
	default:
		return "", fmt.Errorf("unknown enrichment %q", string(e))
	}
}

// AlbumRepository handles album database operations.
type AlbumRepository struct {
	q Querier
}

const albumColumns = `al.id, al.spotify_id, al.artist_id, al.artist_spotify_id, al.type, al.label,
	al.upc_id, al.name, al.genres, al.release_date, al.image_url, al.total_tracks, al.popularity,
	al.primary_color, al.secondary_color, al.fetched_genres_date, al.fetched_colors_date, al.created_at`

func albumDest(a *Album) []any {
	return []any{
		&a.ID,
		&a.SpotifyID,
		&a.ArtistID,
		&a.ArtistSpotifyID,
		&a.Type,
		&a.Label,
		&a.UPC,
		&a.Name,
		&a.Genres,
		&a.ReleaseDate,
		&a.ImageURL,
		&a.TotalTracks,
		&a.Popularity,
		&a.PrimaryColor,
		&a.SecondaryColor,
		&a.FetchedGenresDate,
		&a.FetchedColorsDate,
		&a.CreatedAt,
	}
}

// GetOrCreate returns the row ID for album.SpotifyID, inserting the album if it does not exist.
// An existing row is returned untouched, including its enrichment timestamps.
func (r *AlbumRepository) GetOrCreate(ctx context.Context, album *Album) (int64, error) {
	query := `
		INSERT INTO albums (spotify_id, artist_id, artist_spotify_id, type, label, upc_id,
			name, genres, release_date, image_url, total_tracks, popularity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (spotify_id) DO UPDATE SET spotify_id = EXCLUDED.spotify_id
		RETURNING id
	`
	var id int64
	err := r.q.QueryRow(ctx, query,
		album.SpotifyID,
		album.ArtistID,
		album.ArtistSpotifyID,
		album.Type,
		album.Label,
		album.UPC,
		album.Name,
		album.Genres,
		album.ReleaseDate,
		album.ImageURL,
		album.TotalTracks,
		album.Popularity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get-or-create album %s: %w", album.SpotifyID, err)
	}
	return id, nil
}

// InsertBatch inserts albums that are not stored yet. The artist link is filled in later by LinkArtists.
func (r *AlbumRepository) InsertBatch(ctx context.Context, albums []Album) error {
	if len(albums) == 0 {
		return nil
	}

	query := `
		INSERT INTO albums (spotify_id, artist_spotify_id, type, label, upc_id, name,
			genres, release_date, image_url, total_tracks, popularity)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[],
			$7::text[], $8::text[], $9::text[], $10::int[], $11::int[])
		ON CONFLICT (spotify_id) DO NOTHING
	`

	n := len(albums)
	ids := make([]string, n)
	artistIDs := make([]string, n)
	types := make([]string, n)
	labels := make([]string, n)
	upcs := make([]string, n)
	names := make([]string, n)
	genres := make([]string, n)
	releases := make([]string, n)
	images := make([]string, n)
	totals := make([]int, n)
	popularity := make([]int, n)

	for i, a := range albums {
		ids[i] = a.SpotifyID
		artistIDs[i] = a.ArtistSpotifyID
		types[i] = a.Type
		labels[i] = a.Label
		upcs[i] = a.UPC
		names[i] = a.Name
		genres[i] = a.Genres
		releases[i] = a.ReleaseDate
		images[i] = a.ImageURL
		totals[i] = a.TotalTracks
		popularity[i] = a.Popularity
	}

	_, err := r.q.Exec(ctx, query, ids, artistIDs, types, labels, upcs, names, genres, releases, images, totals, popularity)
	if err != nil {
		return fmt.Errorf("batch inserting albums: %w", err)
	}
	return nil
}

// Missing returns album Spotify IDs referenced by tracks that have no album row.
func (r *AlbumRepository) Missing(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT t.album_spotify_id
		FROM tracks t
		LEFT JOIN albums al ON al.spotify_id = t.album_spotify_id
		WHERE t.album_spotify_id <> '' AND al.id IS NULL
		ORDER BY t.album_spotify_id
	`
	ids, err := collectStrings(ctx, r.q, query)
	if err != nil {
		return nil, fmt.Errorf("finding missing albums: %w", err)
	}
	return ids, nil
}

// LinkArtists points albums without an artist_id at the artist row matching artist_spotify_id.
func (r *AlbumRepository) LinkArtists(ctx context.Context) (int64, error) {
	query := `
		UPDATE albums al
		SET artist_id = ar.id
		FROM artists ar
		WHERE al.artist_id IS NULL AND ar.spotify_id = al.artist_spotify_id
	`
	result, err := r.q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("linking album artists: %w", err)
	}
	return result.RowsAffected(), nil
}

// MissingTags returns every album whose genre/style lookup has not run yet.
func (r *AlbumRepository) MissingTags(ctx context.Context) ([]AlbumRef, error) {
	return r.missing(ctx, EnrichGenres)
}

// MissingColors returns every album whose palette has not been extracted yet.
func (r *AlbumRepository) MissingColors(ctx context.Context) ([]AlbumRef, error) {
	return r.missing(ctx, EnrichColors)
}

func (r *AlbumRepository) missing(ctx context.Context, e Enrichment) ([]AlbumRef, error) {
	col, err := e.column()
	if err != nil {
		return nil, err
	}
	query := `
		SELECT al.id, al.name, COALESCE(ar.name, ''), al.image_url
		FROM albums al
		LEFT JOIN artists ar ON ar.id = al.artist_id
		WHERE al.` + col + ` IS NULL
		ORDER BY al.id
	`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying albums missing %s: %w", e, err)
	}
	defer rows.Close()

	var refs []AlbumRef
	for rows.Next() {
		var ref AlbumRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.ArtistName, &ref.ImageURL); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// MarkEnriched stamps the timestamp for one enrichment pass.
func (r *AlbumRepository) MarkEnriched(ctx context.Context, albumID int64, e Enrichment, at time.Time) error {
	col, err := e.column()
	if err != nil {
		return err
	}
	query := `UPDATE albums SET ` + col + ` = $2 WHERE id = $1`
	result, err := r.q.Exec(ctx, query, albumID, at)
	if err != nil {
		return fmt.Errorf("marking album %d %s: %w", albumID, e, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetColors stores the dominant palette for an album.
func (r *AlbumRepository) SetColors(ctx context.Context, albumID int64, primary, secondary string) error {
	query := `UPDATE albums SET primary_color = $2, secondary_color = $3 WHERE id = $1`
	result, err := r.q.Exec(ctx, query, albumID, primary, secondary)
	if err != nil {
		return fmt.Errorf("setting album %d colors: %w", albumID, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Random returns one random album, optionally restricted to a genre.
func (r *AlbumRepository) Random(ctx context.Context, genre string) (*Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums al ORDER BY random() LIMIT 1`
	args := []any{}
	if genre != "" {
		query = `
			SELECT ` + albumColumns + `
			FROM albums al
			JOIN album_genres ag ON ag.album_id = al.id
			JOIN genres g ON g.id = ag.genre_id
			WHERE lower(g.genre) = lower($1)
			ORDER BY random()
			LIMIT 1
		`
		args = append(args, genre)
	}

	var album Album
	err := r.q.QueryRow(ctx, query, args...).Scan(albumDest(&album)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying random album: %w", err)
	}
	return &album, nil
}

// ForUser returns a user's saved albums, most recently saved first.
func (r *AlbumRepository) ForUser(ctx context.Context, userID string) ([]LibraryAlbum, error) {
	query := `
		SELECT ` + albumColumns + `, ua.added_at
		FROM albums al
		JOIN user_albums ua ON ua.album_id = al.id
		WHERE ua.user_id = $1
		ORDER BY ua.added_at DESC NULLS LAST, al.id
	`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user albums: %w", err)
	}
	defer rows.Close()

	var out []LibraryAlbum
	for rows.Next() {
		var la LibraryAlbum
		if err := rows.Scan(append(albumDest(&la.Album), &la.AddedAt)...); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		out = append(out, la)
	}
	return out, rows.Err()
}
