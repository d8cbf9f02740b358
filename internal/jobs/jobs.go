// Package jobs queues per-user sync jobs and runs them outside the request path.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/digster/internal/logger"
)

// Job is one queued sync.
type Job struct {
	ID         uuid.UUID `json:"job_id"`
	UserID     string    `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates a job for userID with a fresh ID.
func NewJob(userID string) Job {
	return Job{
		ID:         uuid.New(),
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue accepts sync jobs. Enqueue returns as soon as the job is accepted.
type Queue interface {
	Enqueue(ctx context.Context, userID string) (Job, error)
}

// Handler runs one job.
type Handler func(ctx context.Context, job Job) error

// run executes h and logs the outcome. Failed jobs are dropped.
func run(ctx context.Context, log *logger.Logger, h Handler, job Job) {
	start := time.Now()
	log = log.With("job_id", job.ID.String(), "user_id", job.UserID)
	if err := h(ctx, job); err != nil {
		log.Error("job failed", "error", err, "elapsed", time.Since(start))
		return
	}
	log.Info("job finished", "elapsed", time.Since(start))
}
