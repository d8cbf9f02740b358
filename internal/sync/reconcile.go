package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/spotify"
)

// ReconcileResult counts the rows fetched by Reconcile.
type ReconcileResult struct {
	Tracks      int
	Albums      int
	Artists     int
	ArtistLinks int64
}

// Reconcile fetches catalog rows that are referenced but not stored: tracks of
// listens, albums of tracks, artists of albums. Then it links albums to artists.
// Order matters, since each step can surface references for the next.
func (s *Service) Reconcile(ctx context.Context, creds *spotify.Credentials) (ReconcileResult, error) {
	var res ReconcileResult
	var err error

	if res.Tracks, err = s.reconcileTracks(ctx, creds); err != nil {
		return res, err
	}
	if res.Albums, err = s.reconcileAlbums(ctx, creds); err != nil {
		return res, err
	}
	if res.Artists, err = s.reconcileArtists(ctx, creds); err != nil {
		return res, err
	}

	if res.ArtistLinks, err = s.stores.Albums.LinkArtists(ctx); err != nil {
		return res, fmt.Errorf("reconciling: %w", err)
	}
	return res, nil
}

func (s *Service) reconcileTracks(ctx context.Context, creds *spotify.Credentials) (int, error) {
	missing, err := s.stores.Tracks.Missing(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciling tracks: %w", err)
	}

	count := 0
	for _, ids := range Chunk(missing, spotify.MaxTrackIDs) {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		tracks, err := s.catalog.Tracks(ctx, creds, ids)
		if err != nil {
			return count, fmt.Errorf("reconciling tracks: %w", err)
		}
		features, err := s.catalog.AudioFeatures(ctx, creds, ids)
		if err != nil {
			return count, fmt.Errorf("reconciling audio features: %w", err)
		}

		byID := make(map[string]spotify.AudioFeatures, len(features))
		for _, f := range features {
			byID[f.ID] = f
		}

		rows := make([]db.Track, 0, len(tracks))
		for _, t := range tracks {
			row := db.Track{
				SpotifyID:      t.ID,
				Name:           t.Name,
				DurationMs:     t.DurationMs,
				Popularity:     t.Popularity,
				AlbumSpotifyID: t.Album.ID,
			}
			if f, ok := byID[t.ID]; ok {
				row.Features = featuresRow(f)
			}
			rows = append(rows, row)
		}
		if err := s.stores.Tracks.InsertBatch(ctx, rows); err != nil {
			return count, fmt.Errorf("reconciling tracks: %w", err)
		}
		count += len(rows)
	}
	return count, nil
}

func (s *Service) reconcileAlbums(ctx context.Context, creds *spotify.Credentials) (int, error) {
	missing, err := s.stores.Albums.Missing(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciling albums: %w", err)
	}

	count := 0
	for _, ids := range Chunk(missing, spotify.MaxAlbumIDs) {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		albums, err := s.catalog.Albums(ctx, creds, ids)
		if err != nil {
			return count, fmt.Errorf("reconciling albums: %w", err)
		}
		rows := make([]db.Album, len(albums))
		for i, a := range albums {
			rows[i] = albumRow(a)
		}
		if err := s.stores.Albums.InsertBatch(ctx, rows); err != nil {
			return count, fmt.Errorf("reconciling albums: %w", err)
		}
		count += len(rows)
	}
	return count, nil
}

func (s *Service) reconcileArtists(ctx context.Context, creds *spotify.Credentials) (int, error) {
	missing, err := s.stores.Artists.Missing(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciling artists: %w", err)
	}

	count := 0
	for _, ids := range Chunk(missing, spotify.MaxArtistIDs) {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		artists, err := s.catalog.Artists(ctx, creds, ids)
		if err != nil {
			return count, fmt.Errorf("reconciling artists: %w", err)
		}
		rows := make([]db.Artist, len(artists))
		for i, a := range artists {
			followers, popularity := a.Followers.Total, a.Popularity
			rows[i] = db.Artist{
				SpotifyID:  a.ID,
				Name:       a.Name,
				Genres:     strings.Join(a.Genres, ", "),
				Followers:  &followers,
				Popularity: &popularity,
				ImageURL:   a.ImageURL(),
			}
		}
		if err := s.stores.Artists.InsertBatch(ctx, rows); err != nil {
			return count, fmt.Errorf("reconciling artists: %w", err)
		}
		count += len(rows)
	}
	return count, nil
}

func featuresRow(f spotify.AudioFeatures) *db.AudioFeatures {
	return &db.AudioFeatures{
		Danceability:     f.Danceability,
		Energy:           f.Energy,
		Key:              f.Key,
		Loudness:         f.Loudness,
		Mode:             f.Mode,
		Speechiness:      f.Speechiness,
		Acousticness:     f.Acousticness,
		Instrumentalness: f.Instrumentalness,
		Liveness:         f.Liveness,
		Valence:          f.Valence,
		Tempo:            f.Tempo,
	}
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[:size:size])
	}
	return append(chunks, items)
}
