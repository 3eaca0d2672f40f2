package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/queue"
)

func newTestJob(id string, channel notification.Channel) *queue.Job {
	return &queue.Job{
		ID:            id,
		MessageID:     "msg-" + id,
		SubscriberID:  "sub-001",
		TransactionID: "trx-001",
		Channel:       channel,
		Status:        queue.StatusPending,
		CreatedAt:     time.Now(),
	}
}

func TestMemoryQueueEnqueueDequeue(t *testing.T) {
	q := queue.NewMemoryQueue(10, logger.Discard)
	if q == nil {
		t.Fatal("Queue should not be nil")
	}
	defer q.Close()

	ctx := context.Background()
	job := newTestJob("job-001", notification.ChannelEmail)

	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if q.Size() != 1 {
		t.Errorf("Queue size should be 1, got %d", q.Size())
	}

	dequeued, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Failed to dequeue job: %v", err)
	}

	if dequeued.ID != "job-001" {
		t.Errorf("Dequeued job ID should be job-001, got %s", dequeued.ID)
	}

	if dequeued.Channel != notification.ChannelEmail {
		t.Error("Dequeued job channel should match")
	}

	if !q.IsEmpty() {
		t.Error("Queue should be empty after dequeue")
	}
}

func TestMemoryQueueFIFOOrder(t *testing.T) {
	q := queue.NewMemoryQueue(10, logger.Discard)
	defer q.Close()

	ctx := context.Background()
	ids := []string{"job-1", "job-2", "job-3"}
	for _, id := range ids {
		if err := q.Enqueue(ctx, newTestJob(id, notification.ChannelInApp)); err != nil {
			t.Fatalf("Failed to enqueue %s: %v", id, err)
		}
	}

	for _, want := range ids {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Failed to dequeue: %v", err)
		}
		if job.ID != want {
			t.Errorf("Expected %s, got %s", want, job.ID)
		}
	}
}

func TestMemoryQueueEmpty(t *testing.T) {
	q := queue.NewMemoryQueue(10, logger.Discard)
	defer q.Close()

	_, err := q.Dequeue(context.Background())
	if !errors.Is(err, queue.ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty, got %v", err)
	}
}

func TestMemoryQueueOverflow(t *testing.T) {
	q := queue.NewMemoryQueue(2, logger.Discard)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, newTestJob("job", notification.ChannelSMS)); err != nil {
			t.Fatalf("Failed to enqueue job %d: %v", i, err)
		}
	}

	err := q.Enqueue(ctx, newTestJob("overflow", notification.ChannelSMS))
	if !errors.Is(err, queue.ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestMemoryQueueRejectsInvalidJob(t *testing.T) {
	q := queue.NewMemoryQueue(10, logger.Discard)
	defer q.Close()

	if err := q.Enqueue(context.Background(), nil); !errors.Is(err, queue.ErrInvalidJob) {
		t.Errorf("Expected ErrInvalidJob for nil job, got %v", err)
	}
}

func TestMemoryQueueClear(t *testing.T) {
	q := queue.NewMemoryQueue(10, logger.Discard)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, newTestJob("job", notification.ChannelPush)); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
	}

	if err := q.Clear(); err != nil {
		t.Fatalf("Failed to clear queue: %v", err)
	}

	if !q.IsEmpty() {
		t.Error("Queue should be empty after clear")
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := queue.NewMemoryQueue(10, logger.Discard)
	if err := q.Close(); err != nil {
		t.Fatalf("Failed to close queue: %v", err)
	}

	err := q.Enqueue(context.Background(), newTestJob("job", notification.ChannelChat))
	if !errors.Is(err, queue.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}
