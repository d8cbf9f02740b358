package db

import (
	"context"
	"fmt"
)

// FollowRepository handles the follow graph. Rows are never deleted; unfollowing flips is_following.
type FollowRepository struct {
	q Querier
}

// Toggle flips whether followerID follows followingID and returns the new state.
// The first call for a pair creates it as following.
func (r *FollowRepository) Toggle(ctx context.Context, followerID, followingID string) (bool, error) {
	query := `
		INSERT INTO follows (follower_id, following_id, is_following, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (follower_id, following_id) DO UPDATE SET
			is_following = NOT follows.is_following,
			updated_at = NOW()
		RETURNING is_following
	`
	var following bool
	if err := r.q.QueryRow(ctx, query, followerID, followingID).Scan(&following); err != nil {
		return false, fmt.Errorf("toggling follow: %w", err)
	}
	return following, nil
}

// Followers returns users currently following userID.
func (r *FollowRepository) Followers(ctx context.Context, userID string) ([]User, error) {
	return r.users(ctx, `
		SELECT u.id, u.display_name, u.image_url, u.description
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = $1 AND f.is_following
		ORDER BY f.updated_at DESC
	`, userID)
}

// Following returns users userID currently follows.
func (r *FollowRepository) Following(ctx context.Context, userID string) ([]User, error) {
	return r.users(ctx, `
		SELECT u.id, u.display_name, u.image_url, u.description
		FROM follows f
		JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = $1 AND f.is_following
		ORDER BY f.updated_at DESC
	`, userID)
}

func (r *FollowRepository) users(ctx context.Context, query, userID string) ([]User, error) {
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying follows: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.ImageURL, &u.Description); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Feed returns albums recently saved by users that userID follows, newest first.
func (r *FollowRepository) Feed(ctx context.Context, userID string, limit int) ([]FeedItem, error) {
	query := `
		SELECT u.id, u.display_name, ua.added_at, ua.created_at, ` + albumColumns + `
		FROM follows f
		JOIN users u ON u.id = f.following_id
		JOIN user_albums ua ON ua.user_id = f.following_id
		JOIN albums al ON al.id = ua.album_id
		WHERE f.follower_id = $1 AND f.is_following
		ORDER BY ua.created_at DESC, al.id
		LIMIT $2
	`
	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}
	defer rows.Close()

	var items []FeedItem
	for rows.Next() {
		var it FeedItem
		dest := append([]any{&it.UserID, &it.DisplayName, &it.AddedAt, &it.CreatedAt}, albumDest(&it.Album)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning feed item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
