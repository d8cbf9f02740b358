package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justestif/digster/internal/logger"
)

const defaultBlockTimeout = 5 * time.Second

// RedisQueue is a FIFO job list in Redis shared by the API server and the workers.
type RedisQueue struct {
	rdb          *goredis.Client
	key          string
	blockTimeout time.Duration
	log          *logger.Logger
}

// NewRedisQueue connects to addr and checks the connection.
func NewRedisQueue(ctx context.Context, addr, key string, log *logger.Logger) (*RedisQueue, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisQueueWithClient(rdb, key, log), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(rdb *goredis.Client, key string, log *logger.Logger) *RedisQueue {
	return &RedisQueue{
		rdb:          rdb,
		key:          key,
		blockTimeout: defaultBlockTimeout,
		log:          log.With("service", "RedisQueue", "queue", key),
	}
}

// Enqueue pushes a job for userID.
func (q *RedisQueue) Enqueue(ctx context.Context, userID string) (Job, error) {
	job := NewJob(userID)
	raw, err := json.Marshal(job)
	if err != nil {
		return Job{}, err
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return Job{}, fmt.Errorf("enqueueing sync for %s: %w", userID, err)
	}
	return job, nil
}

// Len returns the number of waiting jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Consume pops jobs one at a time and runs h on each until ctx is cancelled.
func (q *RedisQueue) Consume(ctx context.Context, h Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := q.rdb.BRPop(ctx, q.blockTimeout, q.key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("popping job: %w", err)
		}

		// BRPOP returns [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.Warn("bad job payload", "error", err)
			continue
		}
		run(ctx, q.log, h, job)
	}
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}
