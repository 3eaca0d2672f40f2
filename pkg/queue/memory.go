// Package queue provides the memory-based queue implementation.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/relayhub/pkg/logger"
)

// memoryQueue implements an in-memory job queue backed by a buffered channel.
type memoryQueue struct {
	jobs     chan *Job
	capacity int
	closed   int32
	stats    *Stats
	mutex    sync.Mutex
	logger   logger.Logger
}

// NewMemoryQueue creates a new in-memory queue with the given capacity.
func NewMemoryQueue(capacity int, log logger.Logger) Queue {
	if log == nil {
		log = logger.Discard
	}
	if capacity <= 0 {
		capacity = 1024
	}

	q := &memoryQueue{
		jobs:     make(chan *Job, capacity),
		capacity: capacity,
		stats:    &Stats{CreatedAt: time.Now()},
		logger:   log,
	}

	log.Info("Memory queue created", "capacity", capacity)
	return q
}

// Enqueue adds a job to the queue.
func (q *memoryQueue) Enqueue(ctx context.Context, job *Job) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		q.logger.Error("Attempted to enqueue to closed queue")
		return ErrQueueClosed
	}
	if job == nil {
		q.logger.Error("Attempted to enqueue nil job")
		return ErrInvalidJob
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}

	select {
	case q.jobs <- job:
		atomic.AddInt64(&q.stats.EnqueuedCount, 1)
		q.logger.Debug("Job enqueued", "jobID", job.ID, "channel", job.Channel)
		return nil
	case <-ctx.Done():
		q.logger.Warn("Enqueue cancelled", "jobID", job.ID)
		return ctx.Err()
	default:
		q.logger.Error("Queue is full", "capacity", q.capacity)
		return ErrQueueFull
	}
}

// Dequeue retrieves and removes a job from the queue.
func (q *memoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	if atomic.LoadInt32(&q.closed) == 1 {
		return nil, ErrQueueClosed
	}

	select {
	case job := <-q.jobs:
		atomic.AddInt64(&q.stats.DequeuedCount, 1)
		q.logger.Debug("Job dequeued", "jobID", job.ID)
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, ErrQueueEmpty
	}
}

// Size returns the number of jobs in the queue.
func (q *memoryQueue) Size() int {
	return len(q.jobs)
}

// IsEmpty returns true if the queue has no jobs.
func (q *memoryQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear removes all jobs from the queue.
func (q *memoryQueue) Clear() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for len(q.jobs) > 0 {
		<-q.jobs
	}

	q.logger.Info("Queue cleared")
	return nil
}

// Close closes the queue and releases resources.
func (q *memoryQueue) Close() error {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return nil // Already closed
	}

	q.logger.Info("Memory queue closed")
	return nil
}

// GetStats returns queue statistics.
func (q *memoryQueue) GetStats() *Stats {
	return &Stats{
		Size:          q.Size(),
		EnqueuedCount: atomic.LoadInt64(&q.stats.EnqueuedCount),
		DequeuedCount: atomic.LoadInt64(&q.stats.DequeuedCount),
		CreatedAt:     q.stats.CreatedAt,
	}
}
