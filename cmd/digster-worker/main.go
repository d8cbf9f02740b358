// Command digster-worker consumes queued syncs and schedules syncs for opted-in users.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/digster/internal/app"
	"github.com/justestif/digster/internal/config"
	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/jobs"
	"github.com/justestif/digster/internal/logger"
)

const sessionSweepInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return errors.New("the worker needs REDIS_ADDR")
	}

	log, err := logger.New(cfg.LogMode, logger.Options{})
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With("component", "worker")

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

	queue, err := jobs.NewRedisQueue(ctx, cfg.RedisAddr, cfg.RedisQueue, log)
	if err != nil {
		return err
	}
	defer queue.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Consume(ctx, services.RunSync)
	})
	if cfg.SyncSchedule > 0 {
		scheduler := jobs.NewScheduler(database.Users(), queue, cfg.SyncSchedule, log)
		g.Go(func() error {
			return scheduler.Run(ctx)
		})
	}
	g.Go(func() error {
		return sweepSessions(ctx, database.Sessions(), log)
	})

	log.Info("worker started", "queue", cfg.RedisQueue, "schedule", cfg.SyncSchedule.String())
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}

// sweepSessions deletes expired sessions once an hour.
func sweepSessions(ctx context.Context, sessions *db.SessionRepository, log *logger.Logger) error {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired sessions removed", "count", n)
			}
		}
	}
}
