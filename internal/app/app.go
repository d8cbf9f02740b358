// Package app wires clients, stores and services shared by the API server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/justestif/digster/internal/auth"
	"github.com/justestif/digster/internal/config"
	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/discogs"
	"github.com/justestif/digster/internal/discover"
	"github.com/justestif/digster/internal/jobs"
	"github.com/justestif/digster/internal/logger"
	"github.com/justestif/digster/internal/palette"
	"github.com/justestif/digster/internal/spotify"
	catalogsync "github.com/justestif/digster/internal/sync"
	"github.com/justestif/digster/internal/tags"
)

// Services are the domain services built from one configuration.
type Services struct {
	Sync     *catalogsync.Service
	Discover *discover.Service

	log *logger.Logger
}

// Options overrides external endpoints, mostly for tests.
type Options struct {
	SpotifyAPIURL   string
	SpotifyTokenURL string
	DiscogsAPIURL   string
	DiscogsSiteURL  string
}

// Build constructs the services. Clients are created once here and injected.
func Build(cfg *config.Config, database *db.DB, log *logger.Logger, opts Options) (*Services, error) {
	var refresherOpts []auth.RefresherOption
	if opts.SpotifyTokenURL != "" {
		refresherOpts = append(refresherOpts, auth.WithTokenURL(opts.SpotifyTokenURL))
	}
	refresher := auth.NewRefresher(cfg.SpotifyClientID, cfg.SpotifyClientSecret, refresherOpts...)

	var catalogOpts []spotify.Option
	if opts.SpotifyAPIURL != "" {
		catalogOpts = append(catalogOpts, spotify.WithBaseURL(opts.SpotifyAPIURL))
	}
	catalog := spotify.NewClient(refresher, log, catalogOpts...)

	var discogsOpts []discogs.Option
	if opts.DiscogsAPIURL != "" {
		discogsOpts = append(discogsOpts, discogs.WithAPIURL(opts.DiscogsAPIURL))
	}
	if opts.DiscogsSiteURL != "" {
		discogsOpts = append(discogsOpts, discogs.WithSiteURL(opts.DiscogsSiteURL))
	}
	colorPass := palette.NewService(database.Albums(), palette.NewExtractor(), log)

	// Unauthenticated searches are rejected, and a rejected lookup still stamps the album.
	var tagPass catalogsync.TagPass
	if cfg.DiscogsToken != "" {
		tagPass = tags.NewService(discogs.NewClient(cfg.DiscogsToken, log, discogsOpts...), database.Albums(), database.Tags(), log)
	} else {
		log.Warn("no Discogs token, tag pass disabled")
	}

	syncOpts := []catalogsync.Option{catalogsync.WithPasses(tagPass, colorPass)}
	if cfg.CatalogAppToken {
		cache, err := tokenCache(cfg)
		if err != nil {
			return nil, err
		}
		var appOpts []auth.RefresherOption
		if opts.SpotifyTokenURL != "" {
			appOpts = append(appOpts, auth.WithTokenURL(opts.SpotifyTokenURL))
		}
		appTokens := auth.NewAppTokenSource(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cache, log, appOpts...)
		syncOpts = append(syncOpts, catalogsync.WithAppTokens(appTokens))
	}

	return &Services{
		Sync:     catalogsync.New(catalog, catalogsync.StoresFrom(database), log, syncOpts...),
		Discover: discover.NewFromDB(database),
		log:      log,
	}, nil
}

func tokenCache(cfg *config.Config) (*auth.TokenCache, error) {
	if cfg.TokenCachePath != "" {
		return auth.NewTokenCache(cfg.TokenCachePath), nil
	}
	cache, err := auth.DefaultTokenCache()
	if err != nil {
		return nil, fmt.Errorf("locating token cache: %w", err)
	}
	return cache, nil
}

// RunSync is the job handler for one user sync.
func (s *Services) RunSync(ctx context.Context, job jobs.Job) error {
	res, err := s.Sync.Run(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("syncing user: %w", err)
	}
	s.log.Info("sync complete",
		"job_id", job.ID.String(),
		"user_id", job.UserID,
		"tagged", res.Tags.Tagged,
		"colored", res.Colors.Albums,
	)
	return nil
}
