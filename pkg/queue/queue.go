// Package queue provides the asynchronous job queue the trigger
// pipeline hands materialized work off to. It supports in-memory and
// Redis backends.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/relayhub/pkg/notification"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueEmpty is returned when attempting to dequeue from an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrInvalidJob is returned when the job is invalid.
	ErrInvalidJob = errors.New("invalid job")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the unit scheduled for asynchronous execution, one per
// materialized message. Once enqueued it is owned by the Runner; the
// trigger pipeline never mutates it after handoff.
type Job struct {
	ID             string                    `json:"id"`
	MessageID      string                    `json:"messageId"`
	NotificationID string                    `json:"notificationId"`
	OrganizationID string                    `json:"organizationId"`
	EnvironmentID  string                    `json:"environmentId"`
	SubscriberID   string                    `json:"subscriberId"`
	TemplateID     string                    `json:"templateId"`
	TransactionID  string                    `json:"transactionId"`
	Channel        notification.Channel      `json:"channel"`
	Payload        map[string]any            `json:"payload,omitempty"`
	Attachments    []notification.Attachment `json:"attachments,omitempty"`
	Status         Status                    `json:"status"`
	Error          string                    `json:"error,omitempty"`
	RetryCount     int                       `json:"retryCount"`
	MaxRetries     int                       `json:"maxRetries"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// Queue defines the interface for job queue implementations.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue retrieves and removes a job from the queue.
	Dequeue(ctx context.Context) (*Job, error)

	// Size returns the number of jobs in the queue.
	Size() int

	// IsEmpty returns true if the queue has no jobs.
	IsEmpty() bool

	// Clear removes all jobs from the queue.
	Clear() error

	// Close closes the queue and releases resources.
	Close() error
}

// Stats holds queue counters.
type Stats struct {
	Size          int       `json:"size"`
	EnqueuedCount int64     `json:"enqueued_count"`
	DequeuedCount int64     `json:"dequeued_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Handler processes a single job.
type Handler func(ctx context.Context, job *Job) error
