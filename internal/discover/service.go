// Package discover provides the social side of the collection: follows, feeds and album discovery.
package discover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/justestif/digster/internal/db"
)

// Common errors.
var (
	ErrSelfFollow           = errors.New("users cannot follow themselves")
	ErrDescriptionTooLong   = fmt.Errorf("description longer than %d characters", MaxDescriptionLength)
	ErrGenreNotInCollection = errors.New("no album with that genre")
)

const (
	// MaxDescriptionLength bounds profile descriptions, in characters.
	MaxDescriptionLength = 500

	// DefaultFeedLimit is the feed size when none is given.
	DefaultFeedLimit = 50
	maxFeedLimit     = 200
)

// UserStore reads and updates profiles.
type UserStore interface {
	Get(ctx context.Context, id string) (*db.User, error)
	SetFetchingAllowed(ctx context.Context, id string, allowed bool) error
	SetDescription(ctx context.Context, id, description string) error
}

// FollowStore is the follow graph.
type FollowStore interface {
	Toggle(ctx context.Context, followerID, followingID string) (bool, error)
	Followers(ctx context.Context, userID string) ([]db.User, error)
	Following(ctx context.Context, userID string) ([]db.User, error)
	Feed(ctx context.Context, userID string, limit int) ([]db.FeedItem, error)
}

// AlbumStore reads the album catalog.
type AlbumStore interface {
	Random(ctx context.Context, genre string) (*db.Album, error)
	ForUser(ctx context.Context, userID string) ([]db.LibraryAlbum, error)
}

// TagStore reads album genres and styles.
type TagStore interface {
	ForAlbum(ctx context.Context, kind db.TagKind, albumID int64) ([]string, error)
}

// Service handles follows and discovery.
type Service struct {
	users   UserStore
	follows FollowStore
	albums  AlbumStore
	tags    TagStore
}

// New creates a discovery service.
func New(users UserStore, follows FollowStore, albums AlbumStore, tags TagStore) *Service {
	return &Service{users: users, follows: follows, albums: albums, tags: tags}
}

// NewFromDB creates a discovery service over the pgx repositories.
func NewFromDB(database *db.DB) *Service {
	return New(database.Users(), database.Follows(), database.Albums(), database.Tags())
}

// AlbumView is an album with its Discogs genres and styles.
type AlbumView struct {
	Album  db.Album
	Genres []string
	Styles []string
}

// Profile returns a user.
func (s *Service) Profile(ctx context.Context, userID string) (*db.User, error) {
	return s.users.Get(ctx, userID)
}

// ToggleFollow flips whether followerID follows followingID and returns the new state.
func (s *Service) ToggleFollow(ctx context.Context, followerID, followingID string) (bool, error) {
	if followerID == followingID {
		return false, ErrSelfFollow
	}
	if _, err := s.users.Get(ctx, followingID); err != nil {
		return false, fmt.Errorf("loading user to follow: %w", err)
	}
	return s.follows.Toggle(ctx, followerID, followingID)
}

// Followers returns the users following userID.
func (s *Service) Followers(ctx context.Context, userID string) ([]db.User, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.follows.Followers(ctx, userID)
}

// Following returns the users userID follows.
func (s *Service) Following(ctx context.Context, userID string) ([]db.User, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.follows.Following(ctx, userID)
}

// Feed returns albums recently saved by the users userID follows.
// A non-positive limit uses DefaultFeedLimit.
func (s *Service) Feed(ctx context.Context, userID string, limit int) ([]db.FeedItem, error) {
	switch {
	case limit <= 0:
		limit = DefaultFeedLimit
	case limit > maxFeedLimit:
		limit = maxFeedLimit
	}
	return s.follows.Feed(ctx, userID, limit)
}

// Library returns a user's saved albums.
func (s *Service) Library(ctx context.Context, userID string) ([]db.LibraryAlbum, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.albums.ForUser(ctx, userID)
}

// RandomAlbum picks a random album, optionally from one genre, with its tags.
func (s *Service) RandomAlbum(ctx context.Context, genre string) (*AlbumView, error) {
	genre = strings.TrimSpace(genre)
	album, err := s.albums.Random(ctx, genre)
	if errors.Is(err, db.ErrNotFound) && genre != "" {
		return nil, fmt.Errorf("%w: %q", ErrGenreNotInCollection, genre)
	}
	if err != nil {
		return nil, err
	}

	view := &AlbumView{Album: *album}
	if view.Genres, err = s.tags.ForAlbum(ctx, db.KindGenre, album.ID); err != nil {
		return nil, err
	}
	if view.Styles, err = s.tags.ForAlbum(ctx, db.KindStyle, album.ID); err != nil {
		return nil, err
	}
	return view, nil
}

// SetFetching records whether the user allows scheduled syncs.
func (s *Service) SetFetching(ctx context.Context, userID string, allowed bool) error {
	return s.users.SetFetchingAllowed(ctx, userID, allowed)
}

// SetDescription updates the profile description.
func (s *Service) SetDescription(ctx context.Context, userID, description string) error {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return s.users.SetDescription(ctx, userID, description)
}
