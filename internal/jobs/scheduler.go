package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/digster/internal/logger"
)

// FetchableLister lists users who opted into scheduled syncs.
type FetchableLister interface {
	ListFetchable(ctx context.Context) ([]string, error)
}

// Scheduler enqueues a sync for every opted-in user at a fixed interval.
type Scheduler struct {
	users FetchableLister
	queue Queue
	every time.Duration
	log   *logger.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(users FetchableLister, queue Queue, every time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		users: users,
		queue: queue,
		every: every,
		log:   log.With("service", "Scheduler"),
	}
}

// Run ticks until ctx is cancelled. The first round is enqueued one interval after start.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.every <= 0 {
		return fmt.Errorf("invalid schedule interval %s", s.every)
	}
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.Warn("scheduled sync round failed", "error", err)
			}
		}
	}
}

// Tick enqueues one sync per opted-in user and returns how many were enqueued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	users, err := s.users.ListFetchable(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	n := 0
	for _, id := range users {
		if _, err := s.queue.Enqueue(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	s.log.Info("scheduled syncs enqueued", "count", n)
	return n, nil
}
