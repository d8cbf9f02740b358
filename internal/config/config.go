// Package config reads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
	ErrMissingDatabaseURL = errors.New("missing DATABASE_URL environment variable")

	// ErrMissingSpotifyCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
	ErrMissingSpotifyCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET environment variable")

	// ErrMissingDiscogsToken is returned when DISCOGS_TOKEN is not set.
	ErrMissingDiscogsToken = errors.New("missing DISCOGS_TOKEN environment variable")
)

const (
	DefaultAddr        = "127.0.0.1:8080"
	DefaultRedirectURI = "http://127.0.0.1:8080/callback"
	DefaultRedisQueue  = "digster:sync"
)

// Config holds everything the binaries need to wire their dependencies.
type Config struct {
	DatabaseURL string

	SpotifyClientID     string
	SpotifyClientSecret string
	RedirectURI         string

	// DiscogsToken authenticates database searches, which Discogs rejects without one.
	DiscogsToken string

	// RedisAddr enables the shared job queue. Empty means syncs run in-process.
	RedisAddr  string
	RedisQueue string

	Addr    string
	LogMode string

	// SyncSchedule is how often the worker enqueues syncs for opted-in users. Zero disables it.
	SyncSchedule time.Duration

	// CatalogAppToken makes reconciliation use client-credentials tokens instead of the user's.
	CatalogAppToken bool

	// TokenCachePath is where the app-level catalog token is cached. Empty uses the user config dir.
	TokenCachePath string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:         env("DATABASE_URL"),
		SpotifyClientID:     env("SPOTIFY_ID"),
		SpotifyClientSecret: env("SPOTIFY_SECRET"),
		RedirectURI:         envOr("REDIRECT_URI", DefaultRedirectURI),
		DiscogsToken:        env("DISCOGS_TOKEN"),
		RedisAddr:           env("REDIS_ADDR"),
		RedisQueue:          envOr("REDIS_QUEUE", DefaultRedisQueue),
		Addr:                envOr("HTTP_ADDR", DefaultAddr),
		LogMode:             envOr("LOG_MODE", "development"),
		TokenCachePath:      env("TOKEN_CACHE_PATH"),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		return nil, ErrMissingSpotifyCredentials
	}
	if cfg.DiscogsToken == "" {
		return nil, ErrMissingDiscogsToken
	}

	if raw := env("SYNC_SCHEDULE"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing SYNC_SCHEDULE: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("SYNC_SCHEDULE must not be negative, got %s", d)
		}
		cfg.SyncSchedule = d
	}

	if raw := env("CATALOG_APP_TOKEN"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing CATALOG_APP_TOKEN: %w", err)
		}
		cfg.CatalogAppToken = b
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOr(key, fallback string) string {
	if v := env(key); v != "" {
		return v
	}
	return fallback
}
