// Package store defines the persistence interfaces behind the trigger
// pipeline and provides memory and SQLite backends. All collections
// support concurrent insert without cross-transaction interference.
package store

import (
	"context"
	"errors"

	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/topic"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// SubscriberStore persists subscribers, keyed by the externally supplied
// subscriberId within an environment.
type SubscriberStore interface {
	// Create stores a new subscriber. Returns ErrAlreadyExists when the
	// subscriberId is already taken in the environment.
	Create(ctx context.Context, sub *subscriber.Subscriber) error

	// FindBySubscriberID looks a subscriber up by external id.
	FindBySubscriberID(ctx context.Context, environmentID, subscriberID string) (*subscriber.Subscriber, error)
}

// TopicStore persists topics, keyed by topic key within an environment.
type TopicStore interface {
	// Create stores a new topic. Returns ErrAlreadyExists when the key is
	// already taken in the environment.
	Create(ctx context.Context, t *topic.Topic) error

	// FindByKey looks a topic up by key. The returned topic is a snapshot;
	// later membership changes do not affect it.
	FindByKey(ctx context.Context, environmentID, key string) (*topic.Topic, error)

	// AddSubscribers registers external subscriber ids with a topic and
	// returns the ids actually added (already-registered ids are counted
	// as succeeded but not duplicated).
	AddSubscribers(ctx context.Context, environmentID, key string, subscriberIDs []string) ([]string, error)
}

// NotificationStore persists per-subscriber notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) error

	// ListBySubscriber returns notifications for a subscriber in creation order.
	ListBySubscriber(ctx context.Context, environmentID, subscriberID string) ([]*notification.Notification, error)
}

// MessageStore persists channel messages.
type MessageStore interface {
	Create(ctx context.Context, m *notification.Message) error

	// Get returns a message by id.
	Get(ctx context.Context, id string) (*notification.Message, error)

	// ListBySubscriber returns messages for a subscriber in creation
	// order, optionally filtered by channel (empty channel matches all).
	ListBySubscriber(ctx context.Context, environmentID, subscriberID string, channel notification.Channel) ([]*notification.Message, error)
}

// LogStore is the append-only execution log sink. The pipeline only
// writes; entries become visible to readers once Append returns.
type LogStore interface {
	Append(ctx context.Context, entry *notification.LogEntry) error

	// List returns entries for an organization/environment in append order.
	List(ctx context.Context, organizationID, environmentID string) ([]*notification.LogEntry, error)
}

// Stores bundles the five collections the pipeline writes to.
type Stores struct {
	Subscribers   SubscriberStore
	Topics        TopicStore
	Notifications NotificationStore
	Messages      MessageStore
	Logs          LogStore
}
