// Package queue provides the Redis-based queue implementation.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/relayhub/pkg/logger"
)

// RedisOptions contains Redis-specific configuration.
type RedisOptions struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password,omitempty"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	PoolSize     int           `json:"pool_size"`
	KeyPrefix    string        `json:"key_prefix"`
}

// redisQueue implements a Redis-backed job queue over a list.
type redisQueue struct {
	client    *redis.Client
	mainQueue string
	capacity  int
	closed    int32
	stats     *Stats
	logger    logger.Logger
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(opts *RedisOptions, capacity int, log logger.Logger) (Queue, error) {
	if log == nil {
		log = logger.Discard
	}
	if opts == nil {
		return nil, errors.New("redis options cannot be nil")
	}

	// Set defaults
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "relayhub:jobs:"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := &redisQueue{
		client:    client,
		mainQueue: opts.KeyPrefix + "main",
		capacity:  capacity,
		stats:     &Stats{CreatedAt: time.Now()},
		logger:    log,
	}

	log.Info("Redis queue created", "addr", opts.Addr, "keyPrefix", opts.KeyPrefix, "capacity", capacity)
	return q, nil
}

// Enqueue adds a job to the queue.
func (q *redisQueue) Enqueue(ctx context.Context, job *Job) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		q.logger.Error("Attempted to enqueue to closed queue")
		return ErrQueueClosed
	}
	if job == nil {
		q.logger.Error("Attempted to enqueue nil job")
		return ErrInvalidJob
	}

	if q.capacity > 0 && q.Size() >= q.capacity {
		q.logger.Error("Queue is full", "capacity", q.capacity)
		return ErrQueueFull
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}

	data, err := json.Marshal(job)
	if err != nil {
		q.logger.Error("Failed to serialize job", "error", err)
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	if err := q.client.LPush(ctx, q.mainQueue, data).Err(); err != nil {
		q.logger.Error("Failed to enqueue job", "error", err)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	atomic.AddInt64(&q.stats.EnqueuedCount, 1)
	q.logger.Debug("Job enqueued", "jobID", job.ID, "channel", job.Channel)
	return nil
}

// Dequeue retrieves and removes a job from the queue.
func (q *redisQueue) Dequeue(ctx context.Context) (*Job, error) {
	if atomic.LoadInt32(&q.closed) == 1 {
		return nil, ErrQueueClosed
	}

	data, err := q.client.RPop(ctx, q.mainQueue).Result()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		q.logger.Error("Failed to dequeue job", "error", err)
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		q.logger.Error("Failed to deserialize job", "error", err)
		return nil, fmt.Errorf("failed to deserialize job: %w", err)
	}

	atomic.AddInt64(&q.stats.DequeuedCount, 1)
	q.logger.Debug("Job dequeued", "jobID", job.ID)
	return &job, nil
}

// Size returns the number of jobs in the queue.
func (q *redisQueue) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	size, err := q.client.LLen(ctx, q.mainQueue).Result()
	if err != nil {
		q.logger.Error("Failed to get queue size", "error", err)
		return 0
	}
	return int(size)
}

// IsEmpty returns true if the queue has no jobs.
func (q *redisQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear removes all jobs from the queue.
func (q *redisQueue) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := q.client.Del(ctx, q.mainQueue).Err(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	q.logger.Info("Queue cleared")
	return nil
}

// Close closes the queue and releases resources.
func (q *redisQueue) Close() error {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return nil // Already closed
	}

	q.logger.Info("Closing Redis queue")
	return q.client.Close()
}
