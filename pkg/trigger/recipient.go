// Package trigger implements the trigger resolution and fan-out
// pipeline: recipient normalization, topic expansion, inline subscriber
// registration, deduplication, job materialization and execution
// logging.
package trigger

import (
	"strconv"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/subscriber"
)

// RecipientKind tags the variant of a normalized recipient descriptor.
type RecipientKind string

const (
	// RecipientSubscriber is a bare external subscriber id.
	RecipientSubscriber RecipientKind = "subscriber"
	// RecipientInline is an inline subscriber definition.
	RecipientInline RecipientKind = "inline"
	// RecipientTopic is a reference to a topic by key.
	RecipientTopic RecipientKind = "topic"
)

// Recipient is the canonical, pipeline-internal descriptor for one entry
// of a trigger's `to` list. It lives only for the duration of one
// trigger call.
type Recipient struct {
	Kind         RecipientKind
	SubscriberID string
	Inline       *subscriber.Definition
	TopicKey     string
}

// NormalizeRecipients converts the heterogeneous `to` list into typed
// recipient descriptors, preserving order. The normalizer is the single
// place that discriminates entry shapes; everything downstream switches
// on Kind. Topic entries are rejected when topic notifications are
// disabled by configuration.
func NormalizeRecipients(entries []any, topicsEnabled bool) ([]Recipient, error) {
	recipients := make([]Recipient, 0, len(entries))
	for i, entry := range entries {
		r, err := normalizeEntry(entry, topicsEnabled)
		if err != nil {
			return nil, err.WithDetails(errorPosition(i))
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

func normalizeEntry(entry any, topicsEnabled bool) (Recipient, *errors.Error) {
	switch v := entry.(type) {
	case string:
		if v == "" {
			return Recipient{}, errors.InvalidRecipient("subscriber id must not be empty")
		}
		return Recipient{Kind: RecipientSubscriber, SubscriberID: v}, nil

	case subscriber.Definition:
		return normalizeInline(&v)

	case *subscriber.Definition:
		if v == nil {
			return Recipient{}, errors.InvalidRecipient("recipient entry must not be nil")
		}
		return normalizeInline(v)

	case map[string]any:
		if _, ok := v["topicKey"]; ok {
			key := stringField(v, "topicKey")
			if key == "" {
				return Recipient{}, errors.InvalidRecipient("topic reference is missing its key")
			}
			if !topicsEnabled {
				return Recipient{}, errors.InvalidRecipient("topic recipients are disabled for this environment")
			}
			return Recipient{Kind: RecipientTopic, TopicKey: key}, nil
		}
		if _, ok := v["subscriberId"]; ok {
			def := &subscriber.Definition{
				SubscriberID: stringField(v, "subscriberId"),
				FirstName:    stringField(v, "firstName"),
				LastName:     stringField(v, "lastName"),
				Email:        stringField(v, "email"),
				Phone:        stringField(v, "phone"),
			}
			return normalizeInline(def)
		}
		return Recipient{}, errors.InvalidRecipient("recipient object matches neither a topic reference nor a subscriber definition")

	case nil:
		return Recipient{}, errors.InvalidRecipient("recipient entry must not be nil")

	default:
		return Recipient{}, errors.InvalidRecipient("recipient entry has unsupported type %T", entry)
	}
}

func normalizeInline(def *subscriber.Definition) (Recipient, *errors.Error) {
	if !def.Valid() {
		return Recipient{}, errors.InvalidRecipient("inline subscriber definition is missing subscriberId")
	}
	return Recipient{Kind: RecipientInline, Inline: def}, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func errorPosition(index int) string {
	return "to[" + strconv.Itoa(index) + "]"
}
