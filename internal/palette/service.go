package palette

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/logger"
)

// AlbumStore is the album persistence the color pass needs.
type AlbumStore interface {
	MissingColors(ctx context.Context) ([]db.AlbumRef, error)
	SetColors(ctx context.Context, albumID int64, primary, secondary string) error
	MarkEnriched(ctx context.Context, albumID int64, e db.Enrichment, at time.Time) error
}

// ColorExtractor computes a palette for an image URL.
type ColorExtractor interface {
	Extract(ctx context.Context, url string) ([]string, error)
}

// Service runs the color backfill pass.
type Service struct {
	albums    AlbumStore
	extractor ColorExtractor
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a color pass.
func NewService(albums AlbumStore, extractor ColorExtractor, log *logger.Logger) *Service {
	return &Service{
		albums:    albums,
		extractor: extractor,
		log:       log.With("pass", "colors"),
		now:       time.Now,
	}
}

// Result summarizes one pass.
type Result struct {
	Albums    int
	Fallbacks int
	// Failed counts albums whose colors could not be stored. They stay unstamped for the next pass.
	Failed int
}

// Backfill extracts colors for every album without fetched_colors_date, one at a time.
// Extraction failures store the fallback palette; the album is stamped either way.
func (s *Service) Backfill(ctx context.Context) (Result, error) {
	var res Result

	albums, err := s.albums.MissingColors(ctx)
	if err != nil {
		return res, fmt.Errorf("listing albums without colors: %w", err)
	}

	for _, album := range albums {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		colors, err := s.extractor.Extract(ctx, album.ImageURL)
		if err != nil || len(colors) == 0 {
			s.log.Warn("color extraction failed, using fallback", "album_id", album.ID, "error", err)
			colors = Fallback
			res.Fallbacks++
		}

		primary, secondary := colors[0], colors[0]
		if len(colors) > 1 {
			secondary = colors[1]
		}

		if err := s.albums.SetColors(ctx, album.ID, primary, secondary); err != nil {
			s.log.Error("storing colors failed", "album_id", album.ID, "error", err)
			res.Failed++
			continue
		}
		if err := s.albums.MarkEnriched(ctx, album.ID, db.EnrichColors, s.now()); err != nil {
			s.log.Error("stamping colors failed", "album_id", album.ID, "error", err)
			res.Failed++
			continue
		}
		res.Albums++
	}

	s.log.Info("color pass finished", "albums", res.Albums, "fallbacks", res.Fallbacks, "failed", res.Failed)
	return res, nil
}
