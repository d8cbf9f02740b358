package db

import (
	"context"
	"fmt"
	"time"
)

// ListenRepository handles listening history.
type ListenRepository struct {
	q Querier
}

// InsertBatch records plays for one user. Plays already stored are skipped.
func (r *ListenRepository) InsertBatch(ctx context.Context, userID string, listens []Listen) error {
	if len(listens) == 0 {
		return nil
	}

	query := `
		INSERT INTO listens (user_id, track_spotify_id, listened_at)
		SELECT $1, * FROM unnest($2::text[], $3::timestamptz[])
		ON CONFLICT (user_id, track_spotify_id, listened_at) DO NOTHING
	`

	trackIDs := make([]string, len(listens))
	playedAt := make([]time.Time, len(listens))
	for i, l := range listens {
		trackIDs[i] = l.TrackSpotifyID
		playedAt[i] = l.ListenedAt
	}

	if _, err := r.q.Exec(ctx, query, userID, trackIDs, playedAt); err != nil {
		return fmt.Errorf("batch inserting listens: %w", err)
	}
	return nil
}
