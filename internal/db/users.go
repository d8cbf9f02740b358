package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UserRepository handles user database operations.
type UserRepository struct {
	q Querier
}

const userColumns = `id, display_name, email, country, image_url, description,
	has_allowed_fetching, spotify_access_token, spotify_refresh_token, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.Email,
		&u.Country,
		&u.ImageURL,
		&u.Description,
		&u.HasAllowedFetching,
		&u.AccessToken,
		&u.RefreshToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// Upsert creates a user on first login or refreshes their profile and credentials.
// Description and the fetching opt-in are user-controlled and survive re-login.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, display_name, email, country, image_url,
			spotify_access_token, spotify_refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			country = EXCLUDED.country,
			image_url = EXCLUDED.image_url,
			spotify_access_token = EXCLUDED.spotify_access_token,
			spotify_refresh_token = EXCLUDED.spotify_refresh_token,
			updated_at = NOW()
		RETURNING description, has_allowed_fetching, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query,
		user.ID,
		user.DisplayName,
		user.Email,
		user.Country,
		user.ImageURL,
		user.AccessToken,
		user.RefreshToken,
	).Scan(&user.Description, &user.HasAllowedFetching, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// UpdateTokens stores refreshed credentials. The refresh token changes when Spotify rotates it.
func (r *UserRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	query := `
		UPDATE users
		SET spotify_access_token = $2, spotify_refresh_token = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.q.Exec(ctx, query, id, accessToken, refreshToken)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFetchingAllowed records whether scheduled syncs may run for the user.
func (r *UserRepository) SetFetchingAllowed(ctx context.Context, id string, allowed bool) error {
	query := `
		UPDATE users
		SET has_allowed_fetching = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.q.Exec(ctx, query, id, allowed)
	if err != nil {
		return fmt.Errorf("updating fetching flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDescription updates the free-text profile description.
func (r *UserRepository) SetDescription(ctx context.Context, id, description string) error {
	query := `
		UPDATE users
		SET description = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.q.Exec(ctx, query, id, description)
	if err != nil {
		return fmt.Errorf("updating description: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFetchable returns the IDs of users who opted into scheduled syncs.
func (r *UserRepository) ListFetchable(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM users WHERE has_allowed_fetching ORDER BY id`
	return collectStrings(ctx, r.q, query)
}

// collectStrings runs a single-column text query.
func collectStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
