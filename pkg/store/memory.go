// Package store provides memory-backed store implementations, suitable
// for tests and simple deployments.
package store

import (
	"context"
	"sync"

	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/topic"
)

// NewMemoryStores creates the full set of in-memory collections.
func NewMemoryStores() *Stores {
	return &Stores{
		Subscribers:   NewMemorySubscriberStore(),
		Topics:        NewMemoryTopicStore(),
		Notifications: NewMemoryNotificationStore(),
		Messages:      NewMemoryMessageStore(),
		Logs:          NewMemoryLogStore(),
	}
}

func envKey(environmentID, id string) string {
	return environmentID + "/" + id
}

// MemorySubscriberStore is an in-memory SubscriberStore.
type MemorySubscriberStore struct {
	mu   sync.RWMutex
	subs map[string]*subscriber.Subscriber
}

// NewMemorySubscriberStore creates an empty in-memory subscriber store.
func NewMemorySubscriberStore() *MemorySubscriberStore {
	return &MemorySubscriberStore{subs: make(map[string]*subscriber.Subscriber)}
}

// Create stores a new subscriber.
func (s *MemorySubscriberStore) Create(_ context.Context, sub *subscriber.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := envKey(sub.EnvironmentID, sub.SubscriberID)
	if _, exists := s.subs[key]; exists {
		return ErrAlreadyExists
	}

	clone := *sub
	clone.PushTokens = append([]string(nil), sub.PushTokens...)
	s.subs[key] = &clone
	return nil
}

// FindBySubscriberID looks a subscriber up by external id.
func (s *MemorySubscriberStore) FindBySubscriberID(_ context.Context, environmentID, subscriberID string) (*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[envKey(environmentID, subscriberID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sub
	clone.PushTokens = append([]string(nil), sub.PushTokens...)
	return &clone, nil
}

// MemoryTopicStore is an in-memory TopicStore.
type MemoryTopicStore struct {
	mu     sync.RWMutex
	topics map[string]*topic.Topic
}

// NewMemoryTopicStore creates an empty in-memory topic store.
func NewMemoryTopicStore() *MemoryTopicStore {
	return &MemoryTopicStore{topics: make(map[string]*topic.Topic)}
}

// Create stores a new topic.
func (s *MemoryTopicStore) Create(_ context.Context, t *topic.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := envKey(t.EnvironmentID, t.Key)
	if _, exists := s.topics[key]; exists {
		return ErrAlreadyExists
	}

	s.topics[key] = copyTopic(t)
	return nil
}

// FindByKey returns a snapshot of the topic registered under key.
func (s *MemoryTopicStore) FindByKey(_ context.Context, environmentID, key string) (*topic.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[envKey(environmentID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTopic(t), nil
}

// AddSubscribers registers external subscriber ids with a topic.
func (s *MemoryTopicStore) AddSubscribers(_ context.Context, environmentID, key string, subscriberIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[envKey(environmentID, key)]
	if !ok {
		return nil, ErrNotFound
	}

	succeeded := make([]string, 0, len(subscriberIDs))
	for _, id := range subscriberIDs {
		if !t.Has(id) {
			t.Subscribers = append(t.Subscribers, id)
		}
		succeeded = append(succeeded, id)
	}
	return succeeded, nil
}

func copyTopic(t *topic.Topic) *topic.Topic {
	clone := *t
	clone.Subscribers = append([]string(nil), t.Subscribers...)
	return &clone
}

// MemoryNotificationStore is an in-memory NotificationStore.
type MemoryNotificationStore struct {
	mu            sync.RWMutex
	notifications []*notification.Notification
}

// NewMemoryNotificationStore creates an empty in-memory notification store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{}
}

// Create appends a notification.
func (s *MemoryNotificationStore) Create(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *n
	s.notifications = append(s.notifications, &clone)
	return nil
}

// ListBySubscriber returns notifications for a subscriber in creation order.
func (s *MemoryNotificationStore) ListBySubscriber(_ context.Context, environmentID, subscriberID string) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*notification.Notification, 0)
	for _, n := range s.notifications {
		if n.EnvironmentID == environmentID && n.SubscriberID == subscriberID {
			clone := *n
			result = append(result, &clone)
		}
	}
	return result, nil
}

// MemoryMessageStore is an in-memory MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []*notification.Message
	byID     map[string]*notification.Message
}

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{byID: make(map[string]*notification.Message)}
}

// Create appends a message.
func (s *MemoryMessageStore) Create(_ context.Context, m *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := copyMessage(m)
	s.messages = append(s.messages, clone)
	s.byID[m.ID] = clone
	return nil
}

// Get returns a message by id.
func (s *MemoryMessageStore) Get(_ context.Context, id string) (*notification.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(m), nil
}

// ListBySubscriber returns messages for a subscriber, optionally
// filtered by channel.
func (s *MemoryMessageStore) ListBySubscriber(_ context.Context, environmentID, subscriberID string, channel notification.Channel) ([]*notification.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*notification.Message, 0)
	for _, m := range s.messages {
		if m.EnvironmentID != environmentID || m.SubscriberID != subscriberID {
			continue
		}
		if channel != "" && m.Channel != channel {
			continue
		}
		result = append(result, copyMessage(m))
	}
	return result, nil
}

func copyMessage(m *notification.Message) *notification.Message {
	clone := *m
	if m.Payload != nil {
		clone.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			clone.Payload[k] = v
		}
	}
	if m.CTA != nil {
		clone.CTA = make(map[string]any, len(m.CTA))
		for k, v := range m.CTA {
			clone.CTA[k] = v
		}
	}
	clone.Attachments = append([]notification.Attachment(nil), m.Attachments...)
	return &clone
}

// MemoryLogStore is an in-memory append-only LogStore.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []*notification.LogEntry
}

// NewMemoryLogStore creates an empty in-memory log store.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

// Append adds an entry. Entries are visible to List once Append returns.
func (s *MemoryLogStore) Append(_ context.Context, entry *notification.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

// List returns entries for an organization/environment in append order.
func (s *MemoryLogStore) List(_ context.Context, organizationID, environmentID string) ([]*notification.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*notification.LogEntry, 0)
	for _, e := range s.entries {
		if e.OrganizationID == organizationID && e.EnvironmentID == environmentID {
			clone := *e
			result = append(result, &clone)
		}
	}
	return result, nil
}
