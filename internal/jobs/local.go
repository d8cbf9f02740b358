package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/justestif/digster/internal/logger"
)

// localQueueSize bounds the jobs waiting behind the running one.
const localQueueSize = 64

var (
	// ErrQueueFull is returned when the in-process queue has no room left.
	ErrQueueFull = errors.New("sync queue is full")

	// ErrQueueClosed is returned for jobs enqueued after Close.
	ErrQueueClosed = errors.New("sync queue is closed")
)

// LocalQueue runs jobs one at a time on a single goroutine in this process.
type LocalQueue struct {
	ctx context.Context
	h   Handler
	log *logger.Logger

	jobs chan Job
	quit chan struct{}
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewLocalQueue starts the worker. Jobs run under ctx, not the enqueuing request's context.
func NewLocalQueue(ctx context.Context, h Handler, log *logger.Logger) *LocalQueue {
	q := &LocalQueue{
		ctx:  ctx,
		h:    h,
		log:  log.With("service", "LocalQueue"),
		jobs: make(chan Job, localQueueSize),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue queues the job and returns immediately.
func (q *LocalQueue) Enqueue(_ context.Context, userID string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.ctx.Err() != nil {
		return Job{}, ErrQueueClosed
	}

	job := NewJob(userID)
	q.pending.Add(1)
	select {
	case q.jobs <- job:
		return job, nil
	default:
		q.pending.Done()
		return Job{}, ErrQueueFull
	}
}

func (q *LocalQueue) work() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			q.shutdown()
			return
		case <-q.quit:
			q.shutdown()
			return
		case job := <-q.jobs:
			run(q.ctx, q.log, q.h, job)
			q.pending.Done()
		}
	}
}

// shutdown stops intake and drops the jobs still waiting.
func (q *LocalQueue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	dropped := 0
	for {
		select {
		case <-q.jobs:
			dropped++
			q.pending.Done()
		default:
			if dropped > 0 {
				q.log.Warn("dropped queued syncs on shutdown", "count", dropped)
			}
			return
		}
	}
}

// Wait blocks until every accepted job has run or been dropped.
func (q *LocalQueue) Wait() {
	q.pending.Wait()
}

// Close lets the running job finish, drops the rest and stops the worker.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.quit)
	}
	q.mu.Unlock()
	<-q.done
}
