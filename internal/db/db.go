// Package db provides PostgreSQL access for the music catalog, user libraries and social graph.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

//go:embed schema.sql
var schema string

// Querier is the subset of pgxpool.Pool the repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
	q    Querier
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool, q: pool}, nil
}

// NewWithQuerier wraps an existing querier, such as a transaction or a mock pool.
func NewWithQuerier(q Querier) *DB {
	return &DB{q: q}
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Users returns a UserRepository.
func (db *DB) Users() *UserRepository {
	return &UserRepository{q: db.q}
}

// Sessions returns a SessionRepository.
func (db *DB) Sessions() *SessionRepository {
	return &SessionRepository{q: db.q}
}

// Artists returns an ArtistRepository.
func (db *DB) Artists() *ArtistRepository {
	return &ArtistRepository{q: db.q}
}

// Albums returns an AlbumRepository.
func (db *DB) Albums() *AlbumRepository {
	return &AlbumRepository{q: db.q}
}

// Tracks returns a TrackRepository.
func (db *DB) Tracks() *TrackRepository {
	return &TrackRepository{q: db.q}
}

// Listens returns a ListenRepository.
func (db *DB) Listens() *ListenRepository {
	return &ListenRepository{q: db.q}
}

// Library returns a LibraryRepository.
func (db *DB) Library() *LibraryRepository {
	return &LibraryRepository{q: db.q}
}

// Tags returns a TagRepository.
func (db *DB) Tags() *TagRepository {
	return &TagRepository{q: db.q}
}

// Follows returns a FollowRepository.
func (db *DB) Follows() *FollowRepository {
	return &FollowRepository{q: db.q}
}
