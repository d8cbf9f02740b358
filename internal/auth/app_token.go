package auth

import (
	"context"
	"fmt"
	"sync"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justestif/digster/internal/logger"
)

// SessionTokenSource yields an access token for catalog requests that don't act for a user.
type SessionTokenSource interface {
	ObtainSessionToken(ctx context.Context) (string, error)
}

// AppTokenSource issues client-credentials tokens and keeps the current one in a TokenCache
// so restarts don't mint a new token each time.
type AppTokenSource struct {
	cfg   *clientcredentials.Config
	cache *TokenCache
	log   *logger.Logger

	mu      sync.Mutex
	current *oauth2.Token
}

// NewAppTokenSource creates a token source for the app's client credentials.
// cache may be nil to keep tokens in memory only.
func NewAppTokenSource(clientID, clientSecret string, cache *TokenCache, log *logger.Logger, opts ...RefresherOption) *AppTokenSource {
	oc := &oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: spotifyauth.TokenURL}}
	for _, opt := range opts {
		opt(oc)
	}
	return &AppTokenSource{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     oc.Endpoint.TokenURL,
		},
		cache: cache,
		log:   log.With("component", "app_token"),
	}
}

// ObtainSessionToken returns a valid app access token, fetching a new one when the cached one expired.
func (s *AppTokenSource) ObtainSessionToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil && s.cache != nil {
		cached, err := s.cache.Load()
		if err != nil {
			s.log.Warn("ignoring unreadable token cache", "path", s.cache.Path(), "error", err)
		}
		s.current = cached
	}
	if s.current.Valid() {
		return s.current.AccessToken, nil
	}

	token, err := s.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("obtaining app token: %w", err)
	}
	s.current = token

	if s.cache != nil {
		if err := s.cache.Save(token); err != nil {
			s.log.Warn("failed to cache app token", "path", s.cache.Path(), "error", err)
		}
	}
	return token.AccessToken, nil
}
