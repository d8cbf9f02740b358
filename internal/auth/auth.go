// Package auth provides Spotify OAuth2 helpers: the login authenticator, refresh-token exchange
// and app-level tokens for catalog lookups that are not tied to a user.
package auth

import (
	"context"
	"errors"
	"fmt"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// ErrNoRefreshToken is returned when a refresh is requested without a refresh token.
var ErrNoRefreshToken = errors.New("no refresh token")

// Scopes requested at login.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
}

// NewAuthenticator builds the authorization-code authenticator used by the login flow.
func NewAuthenticator(clientID, clientSecret, redirectURI string) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithScopes(Scopes...),
	)
}

// Refresher trades refresh tokens for access tokens at the Spotify token endpoint.
type Refresher struct {
	cfg *oauth2.Config
}

// RefresherOption configures a Refresher.
type RefresherOption func(*oauth2.Config)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(url string) RefresherOption {
	return func(c *oauth2.Config) {
		c.Endpoint.TokenURL = url
	}
}

// NewRefresher creates a Refresher for the app's client credentials.
func NewRefresher(clientID, clientSecret string, opts ...RefresherOption) *Refresher {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   spotifyauth.AuthURL,
			TokenURL:  spotifyauth.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: Scopes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Refresher{cfg: cfg}
}

// Refresh exchanges refreshToken for a new token. The returned RefreshToken is the
// rotated one when Spotify issued it, otherwise refreshToken itself.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	// An already-expired token forces the source to hit the token endpoint.
	token, err := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	return token, nil
}
