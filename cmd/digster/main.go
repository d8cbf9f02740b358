// Command digster runs the digster JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/justestif/digster/internal/app"
	"github.com/justestif/digster/internal/auth"
	"github.com/justestif/digster/internal/config"
	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/jobs"
	"github.com/justestif/digster/internal/logger"
	"github.com/justestif/digster/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode, logger.Options{})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	services, err := app.Build(cfg, database, log, app.Options{})
	if err != nil {
		return err
	}

	var queue jobs.Queue
	if cfg.RedisAddr != "" {
		rq, err := jobs.NewRedisQueue(ctx, cfg.RedisAddr, cfg.RedisQueue, log)
		if err != nil {
			return err
		}
		defer rq.Close()
		queue = rq
	} else {
		log.Info("REDIS_ADDR not set, running syncs in-process")
		lq := jobs.NewLocalQueue(ctx, services.RunSync, log)
		defer lq.Close()
		queue = lq
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:      cfg.Addr,
		OAuth:     auth.NewAuthenticator(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.RedirectURI),
		Sessions:  web.NewDBSessionStore(database.Sessions()),
		Users:     database.Users(),
		Discovery: services.Discover,
		Queue:     queue,
		Log:       log,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}
