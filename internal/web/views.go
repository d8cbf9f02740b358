package web

import (
	"time"

	"github.com/justestif/digster/internal/db"
)

type userView struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	ImageURL           string `json:"image_url,omitempty"`
	Description        string `json:"description,omitempty"`
	HasAllowedFetching *bool  `json:"has_allowed_fetching,omitempty"`
}

// toUserView never exposes tokens or email. Settings are only shown to their owner.
func toUserView(u db.User, self bool) userView {
	v := userView{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		ImageURL:    u.ImageURL,
		Description: u.Description,
	}
	if self {
		allowed := u.HasAllowedFetching
		v.HasAllowedFetching = &allowed
	}
	return v
}

type albumView struct {
	ID             int64      `json:"id"`
	SpotifyID      string     `json:"spotify_id"`
	Name           string     `json:"name"`
	Type           string     `json:"type,omitempty"`
	Label          string     `json:"label,omitempty"`
	ReleaseDate    string     `json:"release_date,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	PrimaryColor   *string    `json:"primary_color,omitempty"`
	SecondaryColor *string    `json:"secondary_color,omitempty"`
	Genres         []string   `json:"genres,omitempty"`
	Styles         []string   `json:"styles,omitempty"`
	AddedAt        *time.Time `json:"added_at,omitempty"`
}

func toAlbumView(a db.Album) albumView {
	return albumView{
		ID:             a.ID,
		SpotifyID:      a.SpotifyID,
		Name:           a.Name,
		Type:           a.Type,
		Label:          a.Label,
		ReleaseDate:    a.ReleaseDate,
		ImageURL:       a.ImageURL,
		PrimaryColor:   a.PrimaryColor,
		SecondaryColor: a.SecondaryColor,
	}
}

type feedItemView struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Album       albumView `json:"album"`
}
