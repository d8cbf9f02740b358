package spotify

import (
	"strings"
	"time"
)

// Batch limits for the multi-get endpoints. These are upstream constraints.
const (
	MaxTrackIDs  = 49
	MaxArtistIDs = 49
	MaxAlbumIDs  = 10

	// MaxPageSize is the largest page the library and history endpoints return.
	MaxPageSize = 50
)

// Credentials are one user's tokens. AccessToken is replaced in place when it is refreshed.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Image is a cover or profile image.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SimpleArtist is the artist stub embedded in album and track objects.
type SimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Artist is a full artist object.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	Followers  struct {
		Total int `json:"total"`
	} `json:"followers"`
	Images []Image `json:"images"`
}

// Album is a full album object.
type Album struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AlbumType   string         `json:"album_type"`
	Label       string         `json:"label"`
	Genres      []string       `json:"genres"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	Popularity  int            `json:"popularity"`
	Images      []Image        `json:"images"`
	Artists     []SimpleArtist `json:"artists"`
	ExternalIDs struct {
		UPC string `json:"upc"`
	} `json:"external_ids"`
}

// PrimaryArtist returns the first credited artist, or a zero value for albums without one.
func (a Album) PrimaryArtist() SimpleArtist {
	if len(a.Artists) == 0 {
		return SimpleArtist{}
	}
	return a.Artists[0]
}

// ImageURL returns the largest cover image URL (Spotify lists images widest first).
func (a Album) ImageURL() string {
	return firstImage(a.Images)
}

// GenreList joins the album genres the way they are stored.
func (a Album) GenreList() string {
	return strings.Join(a.Genres, ", ")
}

// ImageURL returns the largest artist image URL.
func (a Artist) ImageURL() string {
	return firstImage(a.Images)
}

func firstImage(images []Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// SavedAlbum is one entry of a user's saved-albums library.
type SavedAlbum struct {
	AddedAt time.Time `json:"added_at"`
	Album   Album     `json:"album"`
}

// Track is a full track object.
type Track struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	DurationMs int            `json:"duration_ms"`
	Popularity int            `json:"popularity"`
	Artists    []SimpleArtist `json:"artists"`
	Album      struct {
		ID string `json:"id"`
	} `json:"album"`
}

// AudioFeatures is Spotify's audio analysis summary for a track.
type AudioFeatures struct {
	ID               string  `json:"id"`
	Danceability     float32 `json:"danceability"`
	Energy           float32 `json:"energy"`
	Key              float32 `json:"key"`
	Loudness         float32 `json:"loudness"`
	Mode             float32 `json:"mode"`
	Speechiness      float32 `json:"speechiness"`
	Acousticness     float32 `json:"acousticness"`
	Instrumentalness float32 `json:"instrumentalness"`
	Liveness         float32 `json:"liveness"`
	Valence          float32 `json:"valence"`
	Tempo            float32 `json:"tempo"`
}

// PlayHistory is one recently played entry.
type PlayHistory struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

// RecentlyPlayedPage is one page of listening history. Next is empty on the last page.
type RecentlyPlayedPage struct {
	Items []PlayHistory `json:"items"`
	Next  string        `json:"next"`
}
