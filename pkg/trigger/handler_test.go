package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/provider"
	"github.com/kart-io/relayhub/pkg/queue"
	"github.com/kart-io/relayhub/pkg/store"
)

func TestJobHandlerSendsOutboundMessage(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name:    "welcome",
		To:      []any{"alice"},
		Payload: map[string]any{"project": "relayhub"},
	})
	require.NoError(t, err)

	recorder := provider.NewRecordingSender("email")
	providers := provider.NewRegistry(logger.Discard)
	providers.Register(notification.ChannelEmail, recorder)

	runner := queue.NewRunner(q, NewJobHandler(stores, providers, logger.Discard, nil), 1, logger.Discard)
	require.NoError(t, runner.Drain(context.Background()))

	sent := recorder.Sent()
	require.Len(t, sent, 1, "only the email message reaches the sender")
	assert.Equal(t, notification.ChannelEmail, sent[0].Channel)
	assert.Equal(t, "Welcome to relayhub", sent[0].Content)
	assert.Equal(t, "alice@example.com", sent[0].Email)
}

func TestJobHandlerInAppCompletesWithoutSender(t *testing.T) {
	stores := store.NewMemoryStores()
	providers := provider.NewRegistry(logger.Discard)
	handler := NewJobHandler(stores, providers, logger.Discard, nil)

	err := handler(context.Background(), &queue.Job{
		ID:      "job_1",
		Channel: notification.ChannelInApp,
	})
	assert.NoError(t, err)

	entries, err := stores.Logs.List(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, entries, "in-app jobs never write log entries")
}

func TestJobHandlerMissingMessage(t *testing.T) {
	stores := store.NewMemoryStores()
	providers := provider.NewRegistry(logger.Discard)
	handler := NewJobHandler(stores, providers, logger.Discard, nil)

	err := handler(context.Background(), &queue.Job{
		ID:        "job_1",
		MessageID: "msg_missing",
		Channel:   notification.ChannelEmail,
	})
	assert.Error(t, err)
}

func TestJobHandlerWithoutConfiguredSender(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{Name: "welcome", To: []any{"alice"}})
	require.NoError(t, err)

	// No email sender registered; the job still completes and the log
	// entry stands.
	providers := provider.NewRegistry(logger.Discard)
	runner := queue.NewRunner(q, NewJobHandler(stores, providers, logger.Discard, nil), 1, logger.Discard)
	require.NoError(t, runner.Drain(context.Background()))

	assert.EqualValues(t, 0, runner.Failed())
	assert.Equal(t, 1, countText(logTexts(t, stores), "Email message created"))
}
