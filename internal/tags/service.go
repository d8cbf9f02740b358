// Package tags runs the genre/style backfill pass over the album catalog.
package tags

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/discogs"
	"github.com/justestif/digster/internal/logger"
)

// TagFetcher abstracts the Discogs client for testing.
type TagFetcher interface {
	Lookup(ctx context.Context, album, artist string) (discogs.Tags, bool)
}

// AlbumStore is the album persistence the tag pass needs.
type AlbumStore interface {
	MissingTags(ctx context.Context) ([]db.AlbumRef, error)
	MarkEnriched(ctx context.Context, albumID int64, e db.Enrichment, at time.Time) error
}

// TagStore persists genres, styles and their album links.
type TagStore interface {
	GetOrCreate(ctx context.Context, kind db.TagKind, name string) (int64, error)
	Link(ctx context.Context, kind db.TagKind, albumID, tagID int64) error
}

// Service runs the tag backfill pass.
type Service struct {
	fetcher TagFetcher
	albums  AlbumStore
	tags    TagStore
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a tag pass.
func NewService(fetcher TagFetcher, albums AlbumStore, tags TagStore, log *logger.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		albums:  albums,
		tags:    tags,
		log:     log.With("pass", "tags"),
		now:     time.Now,
	}
}

// Result summarizes one pass.
type Result struct {
	Albums int
	Tagged int
	Links  int
	// Failed counts albums whose tags could not be stored. They stay unstamped for the next pass.
	Failed int
}

// Backfill looks up tags for every album without fetched_genres_date, one at a time.
// Albums are stamped whether or not a match was found, so misses are not retried.
// A storage failure skips the album and moves on.
func (s *Service) Backfill(ctx context.Context) (Result, error) {
	var res Result

	albums, err := s.albums.MissingTags(ctx)
	if err != nil {
		return res, fmt.Errorf("listing albums without tags: %w", err)
	}

	for _, album := range albums {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if found, ok := s.fetcher.Lookup(ctx, album.Name, album.ArtistName); ok {
			n, err := s.store(ctx, album.ID, found)
			res.Links += n
			if err != nil {
				s.log.Error("storing tags failed", "album_id", album.ID, "error", err)
				res.Failed++
				continue
			}
			res.Tagged++
		}

		if err := s.albums.MarkEnriched(ctx, album.ID, db.EnrichGenres, s.now()); err != nil {
			s.log.Error("stamping tags failed", "album_id", album.ID, "error", err)
			res.Failed++
			continue
		}
		res.Albums++
	}

	s.log.Info("tag pass finished", "albums", res.Albums, "tagged", res.Tagged, "links", res.Links, "failed", res.Failed)
	return res, nil
}

// store get-or-creates each genre and style and links it to the album.
func (s *Service) store(ctx context.Context, albumID int64, found discogs.Tags) (int, error) {
	links := 0
	for _, group := range []struct {
		kind  db.TagKind
		names []string
	}{
		{db.KindGenre, found.Genres},
		{db.KindStyle, found.Styles},
	} {
		for _, name := range group.names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id, err := s.tags.GetOrCreate(ctx, group.kind, name)
			if err != nil {
				return links, fmt.Errorf("storing %s %q: %w", group.kind, name, err)
			}
			if err := s.tags.Link(ctx, group.kind, albumID, id); err != nil {
				return links, fmt.Errorf("linking %s %q to album %d: %w", group.kind, name, albumID, err)
			}
			links++
		}
	}
	return links, nil
}
