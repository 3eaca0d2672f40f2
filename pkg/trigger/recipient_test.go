package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/subscriber"
)

func TestNormalizeRecipientShapes(t *testing.T) {
	recipients, err := NormalizeRecipients([]any{
		"alice",
		subscriber.Definition{SubscriberID: "bob", FirstName: "Bob"},
		&subscriber.Definition{SubscriberID: "carol"},
		map[string]any{"subscriberId": "dave", "email": "dave@example.com"},
		map[string]any{"topicKey": "team"},
	}, true)
	require.NoError(t, err)
	require.Len(t, recipients, 5)

	assert.Equal(t, RecipientSubscriber, recipients[0].Kind)
	assert.Equal(t, "alice", recipients[0].SubscriberID)

	assert.Equal(t, RecipientInline, recipients[1].Kind)
	assert.Equal(t, "bob", recipients[1].Inline.SubscriberID)

	assert.Equal(t, RecipientInline, recipients[2].Kind)

	assert.Equal(t, RecipientInline, recipients[3].Kind)
	assert.Equal(t, "dave@example.com", recipients[3].Inline.Email)

	assert.Equal(t, RecipientTopic, recipients[4].Kind)
	assert.Equal(t, "team", recipients[4].TopicKey)
}

func TestNormalizePreservesOrder(t *testing.T) {
	recipients, err := NormalizeRecipients([]any{"z", "a", "m"}, true)
	require.NoError(t, err)

	ids := []string{recipients[0].SubscriberID, recipients[1].SubscriberID, recipients[2].SubscriberID}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
}

func TestNormalizeRejectsMalformedEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry any
	}{
		{"empty string", ""},
		{"nil entry", nil},
		{"unsupported type", 42},
		{"empty object", map[string]any{}},
		{"topic without key", map[string]any{"topicKey": ""}},
		{"inline without id", map[string]any{"subscriberId": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeRecipients([]any{tt.entry}, true)
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidRecipient, errors.CodeOf(err))
		})
	}
}

func TestNormalizeErrorNamesPosition(t *testing.T) {
	_, err := NormalizeRecipients([]any{"ok", nil}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to[1]")
}

func TestNormalizeTopicDisabled(t *testing.T) {
	_, err := NormalizeRecipients([]any{map[string]any{"topicKey": "team"}}, false)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidRecipient, errors.CodeOf(err))
}
