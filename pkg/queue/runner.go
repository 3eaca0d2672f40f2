// Package queue provides the worker pool that drains materialized jobs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/relayhub/pkg/logger"
)

// Runner drains a job queue with a pool of workers. The trigger
// pipeline's contract ends at enqueue; from there jobs are owned by the
// Runner until they complete or fail.
type Runner struct {
	queue     Queue
	handler   Handler
	workers   int
	running   bool
	mutex     sync.Mutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	logger    logger.Logger
	processed int64
	failed    int64
}

// NewRunner creates a runner with the given worker count.
func NewRunner(q Queue, handler Handler, workers int, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Discard
	}
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		queue:   q,
		handler: handler,
		workers: workers,
		stopCh:  make(chan struct{}),
		logger:  log,
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start(ctx context.Context) error {
	r.mutex.Lock()
	if r.running {
		r.mutex.Unlock()
		return fmt.Errorf("runner is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mutex.Unlock()

	r.logger.Info("Starting job runner", "workers", r.workers)

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, fmt.Sprintf("worker-%d", i))
	}
	return nil
}

// Stop stops all workers and waits for in-flight jobs to finish.
func (r *Runner) Stop() error {
	r.mutex.Lock()
	if !r.running {
		r.mutex.Unlock()
		return fmt.Errorf("runner is not running")
	}
	r.running = false
	r.mutex.Unlock()

	r.logger.Info("Stopping job runner")
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("Job runner stopped")
	return nil
}

// Drain processes pending jobs synchronously until the queue is empty.
// It is the deterministic alternative to Start for tests and shutdown.
func (r *Runner) Drain(ctx context.Context) error {
	for {
		job, err := r.queue.Dequeue(ctx)
		if errors.Is(err, ErrQueueEmpty) {
			return nil
		}
		if err != nil {
			return err
		}
		r.execute(ctx, job)
	}
}

// Processed returns the number of jobs handled so far.
func (r *Runner) Processed() int64 {
	return atomic.LoadInt64(&r.processed)
}

// Failed returns the number of jobs whose handler returned an error.
func (r *Runner) Failed() int64 {
	return atomic.LoadInt64(&r.failed)
}

func (r *Runner) work(ctx context.Context, id string) {
	defer r.wg.Done()

	r.logger.Debug("Worker started", "workerID", id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
			job, err := r.queue.Dequeue(ctx)
			if err != nil {
				if errors.Is(err, ErrQueueEmpty) {
					time.Sleep(50 * time.Millisecond)
					continue
				}
				if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
					return
				}
				r.logger.Error("Failed to dequeue job", "workerID", id, "error", err)
				time.Sleep(time.Second)
				continue
			}
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()

	err := r.handler(ctx, job)
	job.UpdatedAt = time.Now()
	atomic.AddInt64(&r.processed, 1)

	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		atomic.AddInt64(&r.failed, 1)
		r.logger.Error("Job execution failed",
			"jobID", job.ID,
			"channel", job.Channel,
			"transactionID", job.TransactionID,
			"error", err)
		return
	}

	job.Status = StatusCompleted
	r.logger.Debug("Job completed", "jobID", job.ID, "channel", job.Channel)
}
