package db

import (
	"time"
)

// User represents a Spotify account that has logged in.
type User struct {
	ID                 string
	DisplayName        string
	Email              string
	Country            string
	ImageURL           string
	Description        string
	HasAllowedFetching bool
	AccessToken        string
	RefreshToken       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Session represents an authenticated web session.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Artist represents a Spotify artist.
type Artist struct {
	ID         int64
	SpotifyID  string
	Name       string
	Genres     string
	Followers  *int // nullable
	Popularity *int // nullable
	ImageURL   string
	CreatedAt  time.Time
}

// Album represents a Spotify album plus its enrichment state.
type Album struct {
	ID              int64
	SpotifyID       string
	ArtistID        *int64 // nullable until the artist row exists
	ArtistSpotifyID string
	Type            string
	Label           string
	UPC             string
	Name            string
	Genres          string
	ReleaseDate     string
	ImageURL        string
	TotalTracks     int
	Popularity      int
	PrimaryColor    *string
	SecondaryColor  *string

	// Nil means the album still needs that enrichment pass.
	FetchedGenresDate *time.Time
	FetchedColorsDate *time.Time

	CreatedAt time.Time
}

// AlbumRef is the slice of an album the enrichment passes work from.
type AlbumRef struct {
	ID         int64
	Name       string
	ArtistName string
	ImageURL   string
}

// AudioFeatures holds Spotify's per-track audio analysis.
type AudioFeatures struct {
	Danceability     float32
	Energy           float32
	Key              float32
	Loudness         float32
	Mode             float32
	Speechiness      float32
	Acousticness     float32
	Instrumentalness float32
	Liveness         float32
	Valence          float32
	Tempo            float32
}

// Track represents a Spotify track.
type Track struct {
	ID             int64
	SpotifyID      string
	Name           string
	DurationMs     int
	Popularity     int
	AlbumSpotifyID string
	Features       *AudioFeatures // nullable
	CreatedAt      time.Time
}

// Listen is one play from a user's recently played history.
type Listen struct {
	UserID         string
	TrackSpotifyID string
	ListenedAt     time.Time
}

// LibraryAlbum is an album in a user's library with the date it was saved.
type LibraryAlbum struct {
	Album   Album
	AddedAt *time.Time
}

// FeedItem is an album recently saved by someone the viewer follows.
type FeedItem struct {
	UserID      string
	DisplayName string
	Album       Album
	AddedAt     *time.Time
	CreatedAt   time.Time
}
