package db

import (
	"context"
	"fmt"
)

// TagKind distinguishes the two Discogs tag vocabularies.
type TagKind string

const (
	KindGenre TagKind = "genre"
	KindStyle TagKind = "style"
)

type tagTables struct {
	table      string // genres / styles
	column     string // genre / style
	join       string // album_genres / album_styles
	joinColumn string // genre_id / style_id
}

func (k TagKind) tables() (tagTables, error) {
	switch k {
	case KindGenre:
		return tagTables{"genres", "genre", "album_genres", "genre_id"}, nil
	case KindStyle:
		return tagTables{"styles", "style", "album_styles", "style_id"}, nil
	default:
		return tagTables{}, fmt.Errorf("unknown tag kind %q", string(k))
	}
}

// TagRepository handles genres, styles and their album links.
type TagRepository struct {
	q Querier
}

// GetOrCreate returns the ID of the genre or style with the given text, inserting it if absent.
func (r *TagRepository) GetOrCreate(ctx context.Context, kind TagKind, name string) (int64, error) {
	t, err := kind.tables()
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO ` + t.table + ` (` + t.column + `)
		VALUES ($1)
		ON CONFLICT (` + t.column + `) DO UPDATE SET ` + t.column + ` = EXCLUDED.` + t.column + `
		RETURNING id
	`
	var id int64
	if err := r.q.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("get-or-create %s %q: %w", kind, name, err)
	}
	return id, nil
}

// Link attaches a genre or style to an album. Linking the same pair twice is a no-op.
func (r *TagRepository) Link(ctx context.Context, kind TagKind, albumID, tagID int64) error {
	t, err := kind.tables()
	if err != nil {
		return err
	}
	query := `
		INSERT INTO ` + t.join + ` (album_id, ` + t.joinColumn + `)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.q.Exec(ctx, query, albumID, tagID); err != nil {
		return fmt.Errorf("linking %s %d to album %d: %w", kind, tagID, albumID, err)
	}
	return nil
}

// ForAlbum returns the genre or style names linked to an album.
func (r *TagRepository) ForAlbum(ctx context.Context, kind TagKind, albumID int64) ([]string, error) {
	t, err := kind.tables()
	if err != nil {
		return nil, err
	}
	query := `
		SELECT x.` + t.column + `
		FROM ` + t.table + ` x
		JOIN ` + t.join + ` j ON j.` + t.joinColumn + ` = x.id
		WHERE j.album_id = $1
		ORDER BY x.` + t.column
	names, err := collectStrings(ctx, r.q, query, albumID)
	if err != nil {
		return nil, fmt.Errorf("querying album %ss: %w", kind, err)
	}
	return names, nil
}
