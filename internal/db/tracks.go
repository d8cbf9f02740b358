package db

import (
	"context"
	"fmt"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	q Querier
}

// InsertBatch inserts tracks that are not stored yet, with audio features when known.
func (r *TrackRepository) InsertBatch(ctx context.Context, tracks []Track) error {
	if len(tracks) == 0 {
		return nil
	}

	query := `
		INSERT INTO tracks (spotify_id, name, duration_ms, popularity, album_spotify_id,
			danceability, energy, key, loudness, mode, speechiness,
			acousticness, instrumentalness, liveness, valence, tempo)
		SELECT * FROM unnest($1::text[], $2::text[], $3::int[], $4::int[], $5::text[],
			$6::real[], $7::real[], $8::real[], $9::real[], $10::real[], $11::real[],
			$12::real[], $13::real[], $14::real[], $15::real[], $16::real[])
		ON CONFLICT (spotify_id) DO NOTHING
	`

	n := len(tracks)
	ids := make([]string, n)
	names := make([]string, n)
	durations := make([]int, n)
	popularity := make([]int, n)
	albumIDs := make([]string, n)

	// One column per feature, in insert order.
	features := make([][]*float32, 11)
	for i := range features {
		features[i] = make([]*float32, n)
	}

	for i, t := range tracks {
		ids[i] = t.SpotifyID
		names[i] = t.Name
		durations[i] = t.DurationMs
		popularity[i] = t.Popularity
		albumIDs[i] = t.AlbumSpotifyID
		if f := t.Features; f != nil {
			for j, v := range []float32{
				f.Danceability, f.Energy, f.Key, f.Loudness, f.Mode, f.Speechiness,
				f.Acousticness, f.Instrumentalness, f.Liveness, f.Valence, f.Tempo,
			} {
				features[j][i] = &v
			}
		}
	}

	args := []any{ids, names, durations, popularity, albumIDs}
	for _, col := range features {
		args = append(args, col)
	}

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting tracks: %w", err)
	}
	return nil
}

// Missing returns track Spotify IDs referenced by listens that have no track row.
func (r *TrackRepository) Missing(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT l.track_spotify_id
		FROM listens l
		LEFT JOIN tracks t ON t.spotify_id = l.track_spotify_id
		WHERE t.id IS NULL
		ORDER BY l.track_spotify_id
	`
	ids, err := collectStrings(ctx, r.q, query)
	if err != nil {
		return nil, fmt.Errorf("finding missing tracks: %w", err)
	}
	return ids, nil
}
