package db

import (
	"context"
	"fmt"
	"time"
)

// LibraryRepository handles user library membership.
type LibraryRepository struct {
	q Querier
}

// Link adds an album to a user's library. Re-linking keeps the original added date.
func (r *LibraryRepository) Link(ctx context.Context, userID string, albumID int64, addedAt *time.Time) error {
	query := `
		INSERT INTO user_albums (user_id, album_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, album_id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, query, userID, albumID, addedAt); err != nil {
		return fmt.Errorf("linking album %d to user: %w", albumID, err)
	}
	return nil
}
