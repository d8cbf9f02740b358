// Package sync ingests a user's Spotify library into PostgreSQL and runs the enrichment passes.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/digster/internal/auth"
	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/logger"
	"github.com/justestif/digster/internal/palette"
	"github.com/justestif/digster/internal/spotify"
	"github.com/justestif/digster/internal/tags"
)

// ErrNoCredentials is returned when a user has no stored Spotify tokens.
var ErrNoCredentials = errors.New("user has no spotify credentials")

// Catalog is the part of the Spotify client the orchestrator uses.
type Catalog interface {
	SavedAlbums(ctx context.Context, creds *spotify.Credentials, limit, offset int) ([]spotify.SavedAlbum, int, error)
	RecentlyPlayed(ctx context.Context, creds *spotify.Credentials, next string) (*spotify.RecentlyPlayedPage, error)
	Tracks(ctx context.Context, creds *spotify.Credentials, ids []string) ([]spotify.Track, error)
	AudioFeatures(ctx context.Context, creds *spotify.Credentials, ids []string) ([]spotify.AudioFeatures, error)
	Albums(ctx context.Context, creds *spotify.Credentials, ids []string) ([]spotify.Album, error)
	Artists(ctx context.Context, creds *spotify.Credentials, ids []string) ([]spotify.Artist, error)
}

// UserStore loads users and persists refreshed tokens.
type UserStore interface {
	Get(ctx context.Context, id string) (*db.User, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error
}

// ArtistStore persists artists.
type ArtistStore interface {
	GetOrCreate(ctx context.Context, spotifyID, name string) (int64, error)
	InsertBatch(ctx context.Context, artists []db.Artist) error
	Missing(ctx context.Context) ([]string, error)
}

// AlbumStore persists albums.
type AlbumStore interface {
	GetOrCreate(ctx context.Context, album *db.Album) (int64, error)
	InsertBatch(ctx context.Context, albums []db.Album) error
	Missing(ctx context.Context) ([]string, error)
	LinkArtists(ctx context.Context) (int64, error)
}

// TrackStore persists tracks.
type TrackStore interface {
	InsertBatch(ctx context.Context, tracks []db.Track) error
	Missing(ctx context.Context) ([]string, error)
}

// ListenStore persists listening history.
type ListenStore interface {
	InsertBatch(ctx context.Context, userID string, listens []db.Listen) error
}

// LibraryStore links users to saved albums.
type LibraryStore interface {
	Link(ctx context.Context, userID string, albumID int64, addedAt *time.Time) error
}

// Stores groups the repositories the orchestrator writes to.
type Stores struct {
	Users   UserStore
	Artists ArtistStore
	Albums  AlbumStore
	Tracks  TrackStore
	Listens ListenStore
	Library LibraryStore
}

// StoresFrom returns the pgx repositories of database.
func StoresFrom(database *db.DB) Stores {
	return Stores{
		Users:   database.Users(),
		Artists: database.Artists(),
		Albums:  database.Albums(),
		Tracks:  database.Tracks(),
		Listens: database.Listens(),
		Library: database.Library(),
	}
}

// TagPass is the genre/style enrichment pass.
type TagPass interface {
	Backfill(ctx context.Context) (tags.Result, error)
}

// ColorPass is the cover color enrichment pass.
type ColorPass interface {
	Backfill(ctx context.Context) (palette.Result, error)
}

// Service runs per-user syncs.
type Service struct {
	catalog   Catalog
	stores    Stores
	tags      TagPass
	colors    ColorPass
	appTokens auth.SessionTokenSource
	pageSize  int
	log       *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPasses sets the enrichment passes run after ingestion. Either may be nil.
func WithPasses(t TagPass, c ColorPass) Option {
	return func(s *Service) {
		s.tags = t
		s.colors = c
	}
}

// WithAppTokens makes reconciliation use app tokens instead of the user's credentials.
func WithAppTokens(src auth.SessionTokenSource) Option {
	return func(s *Service) {
		s.appTokens = src
	}
}

// WithPageSize sets the saved-albums page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= spotify.MaxPageSize {
			s.pageSize = n
		}
	}
}

// New creates a sync service.
func New(catalog Catalog, stores Stores, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		catalog:  catalog,
		stores:   stores,
		pageSize: spotify.MaxPageSize,
		log:      log.With("component", "sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result contains the result of a sync.
type Result struct {
	SavedAlbums int
	Listens     int
	Reconciled  ReconcileResult
	Tags        tags.Result
	Colors      palette.Result
	SyncedAt    time.Time
}

// Run syncs one user: saved albums, recent listens, reconciliation of missing
// catalog rows, then the tag and color passes concurrently.
func (s *Service) Run(ctx context.Context, userID string) (*Result, error) {
	log := s.log.With("user_id", userID)

	user, err := s.stores.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user.AccessToken == "" && user.RefreshToken == "" {
		return nil, ErrNoCredentials
	}

	creds := &spotify.Credentials{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
	}
	defer s.persistToken(user, creds)

	res := &Result{}

	if res.SavedAlbums, err = s.SyncSavedAlbums(ctx, userID, creds); err != nil {
		return nil, err
	}
	if res.Listens, err = s.SyncRecentlyPlayed(ctx, userID, creds); err != nil {
		return nil, err
	}

	catalogCreds, err := s.reconcileCredentials(ctx, creds)
	if err != nil {
		return nil, err
	}
	if res.Reconciled, err = s.Reconcile(ctx, catalogCreds); err != nil {
		return nil, err
	}

	if err := s.enrich(ctx, res); err != nil {
		return nil, err
	}

	res.SyncedAt = time.Now()
	log.Info("sync finished",
		"saved_albums", res.SavedAlbums,
		"listens", res.Listens,
		"tracks", res.Reconciled.Tracks,
		"albums", res.Reconciled.Albums,
		"artists", res.Reconciled.Artists,
	)
	return res, nil
}

// persistToken stores the credentials if the catalog client refreshed them.
func (s *Service) persistToken(user *db.User, creds *spotify.Credentials) {
	if creds.AccessToken == user.AccessToken && creds.RefreshToken == user.RefreshToken {
		return
	}
	// The sync context may already be cancelled; the new token is still worth keeping.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.stores.Users.UpdateTokens(ctx, user.ID, creds.AccessToken, creds.RefreshToken); err != nil {
		s.log.Warn("failed to persist refreshed token", "user_id", user.ID, "error", err)
	}
}

func (s *Service) reconcileCredentials(ctx context.Context, user *spotify.Credentials) (*spotify.Credentials, error) {
	if s.appTokens == nil {
		return user, nil
	}
	token, err := s.appTokens.ObtainSessionToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining app token: %w", err)
	}
	return &spotify.Credentials{AccessToken: token}, nil
}

// enrich runs the tag and color passes concurrently. A failing pass does not cancel the other.
func (s *Service) enrich(ctx context.Context, res *Result) error {
	var g errgroup.Group
	if s.tags != nil {
		g.Go(func() error {
			r, err := s.tags.Backfill(ctx)
			res.Tags = r
			if err != nil {
				return fmt.Errorf("tag pass: %w", err)
			}
			return nil
		})
	}
	if s.colors != nil {
		g.Go(func() error {
			r, err := s.colors.Backfill(ctx)
			res.Colors = r
			if err != nil {
				return fmt.Errorf("color pass: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncSavedAlbums pages through the user's saved albums until an empty page and
// stores each album, its primary artist and the library link.
func (s *Service) SyncSavedAlbums(ctx context.Context, userID string, creds *spotify.Credentials) (int, error) {
	count := 0
	for offset := 0; ; offset += s.pageSize {
		page, _, err := s.catalog.SavedAlbums(ctx, creds, s.pageSize, offset)
		if err != nil {
			return count, fmt.Errorf("syncing saved albums: %w", err)
		}
		if len(page) == 0 {
			return count, nil
		}

		for _, saved := range page {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			if err := s.storeSaved(ctx, userID, saved); err != nil {
				return count, err
			}
			count++
		}
	}
}

func (s *Service) storeSaved(ctx context.Context, userID string, saved spotify.SavedAlbum) error {
	album := albumRow(saved.Album)

	if artist := saved.Album.PrimaryArtist(); artist.ID != "" {
		artistID, err := s.stores.Artists.GetOrCreate(ctx, artist.ID, artist.Name)
		if err != nil {
			return fmt.Errorf("storing artist for album %s: %w", saved.Album.ID, err)
		}
		album.ArtistID = &artistID
	}

	albumID, err := s.stores.Albums.GetOrCreate(ctx, &album)
	if err != nil {
		return fmt.Errorf("storing album: %w", err)
	}

	var addedAt *time.Time
	if !saved.AddedAt.IsZero() {
		addedAt = &saved.AddedAt
	}
	if err := s.stores.Library.Link(ctx, userID, albumID, addedAt); err != nil {
		return fmt.Errorf("linking album %s: %w", saved.Album.ID, err)
	}
	return nil
}

// SyncRecentlyPlayed follows the recently-played pages and stores every listen.
func (s *Service) SyncRecentlyPlayed(ctx context.Context, userID string, creds *spotify.Credentials) (int, error) {
	count := 0
	next := ""
	for {
		page, err := s.catalog.RecentlyPlayed(ctx, creds, next)
		if err != nil {
			return count, fmt.Errorf("syncing listens: %w", err)
		}
		if len(page.Items) == 0 {
			return count, nil
		}

		listens := make([]db.Listen, 0, len(page.Items))
		for _, item := range page.Items {
			if item.Track.ID == "" {
				continue
			}
			listens = append(listens, db.Listen{
				UserID:         userID,
				TrackSpotifyID: item.Track.ID,
				ListenedAt:     item.PlayedAt,
			})
		}
		if err := s.stores.Listens.InsertBatch(ctx, userID, listens); err != nil {
			return count, fmt.Errorf("storing listens: %w", err)
		}
		count += len(listens)

		if page.Next == "" || page.Next == next {
			return count, nil
		}
		next = page.Next
	}
}

// albumRow converts a catalog album to a row. ArtistID is left for the caller.
func albumRow(a spotify.Album) db.Album {
	return db.Album{
		SpotifyID:       a.ID,
		ArtistSpotifyID: a.PrimaryArtist().ID,
		Type:            a.AlbumType,
		Label:           a.Label,
		UPC:             a.ExternalIDs.UPC,
		Name:            a.Name,
		Genres:          a.GenreList(),
		ReleaseDate:     a.ReleaseDate,
		ImageURL:        a.ImageURL(),
		TotalTracks:     a.TotalTracks,
		Popularity:      a.Popularity,
	}
}
