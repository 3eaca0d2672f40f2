// Package provider defines the outbound channel sender interface and
// registry. Real carrier integrations live behind Sender; the built-in
// implementations only record or discard, since provider-specific
// delivery semantics are outside the fan-out core.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
)

// Sender transmits one rendered message over a channel.
type Sender interface {
	// Name returns the sender's name for logging.
	Name() string

	// Send transmits the message. Attachments are present on the message
	// only for channels that render them.
	Send(ctx context.Context, msg *notification.Message) error
}

// Registry maps channels to their configured senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[notification.Channel]Sender
	logger  logger.Logger
}

// NewRegistry creates an empty sender registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard
	}
	return &Registry{
		senders: make(map[notification.Channel]Sender),
		logger:  log,
	}
}

// Register binds a sender to a channel, replacing any previous binding.
func (r *Registry) Register(ch notification.Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[ch] = s
	r.logger.Info("Sender registered", "channel", ch, "sender", s.Name())
}

// Resolve returns the sender bound to a channel.
func (r *Registry) Resolve(ch notification.Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("no sender registered for channel %s", ch)
	}
	return s, nil
}

// Channels returns the channels with a registered sender.
func (r *Registry) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]notification.Channel, 0, len(r.senders))
	for ch := range r.senders {
		channels = append(channels, ch)
	}
	return channels
}

// NoopSender accepts every message without transmitting anything.
type NoopSender struct {
	name string
}

// NewNoopSender creates a no-op sender with the given name.
func NewNoopSender(name string) *NoopSender {
	return &NoopSender{name: name}
}

// Name returns the sender's name.
func (s *NoopSender) Name() string { return s.name }

// Send does nothing.
func (s *NoopSender) Send(context.Context, *notification.Message) error { return nil }

// RecordingSender keeps every message it is asked to send. Used by tests
// to observe outbound traffic.
type RecordingSender struct {
	name string
	mu   sync.Mutex
	sent []*notification.Message
}

// NewRecordingSender creates a recording sender with the given name.
func NewRecordingSender(name string) *RecordingSender {
	return &RecordingSender{name: name}
}

// Name returns the sender's name.
func (s *RecordingSender) Name() string { return s.name }

// Send records the message.
func (s *RecordingSender) Send(_ context.Context, msg *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *RecordingSender) Sent() []*notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Message, len(s.sent))
	copy(out, s.sent)
	return out
}
