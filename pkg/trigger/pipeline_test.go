package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/provider"
	"github.com/kart-io/relayhub/pkg/queue"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/topic"
	"github.com/kart-io/relayhub/pkg/utils/idgen"
	"github.com/kart-io/relayhub/pkg/workflow"
)

var testEnv = Environment{
	OrganizationID: "org_test",
	EnvironmentID:  "env_test",
}

// welcomeWorkflow has one in-app and one email step.
func welcomeWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:   "wfl_welcome",
		Name: "welcome",
		Steps: []workflow.Step{
			{
				Channel: notification.ChannelInApp,
				Content: "Hello {{.subscriber.firstName}}",
				CTA:     map[string]any{"type": "redirect", "url": "/welcome"},
				Active:  true,
			},
			{
				Channel: notification.ChannelEmail,
				Content: "Welcome to {{.payload.project}}",
				Subject: "Hi {{.subscriber.firstName}}",
				Active:  true,
			},
		},
	}
}

func newTestPipeline(t *testing.T, wf *workflow.Workflow, opts ...Option) (*Pipeline, *store.Stores, queue.Queue) {
	t.Helper()

	stores := store.NewMemoryStores()
	q := queue.NewMemoryQueue(64, logger.Discard)
	workflows := workflow.NewRegistry()
	require.NoError(t, workflows.Register(wf))

	p := NewPipeline(workflows, stores, q, logger.Discard, opts...)
	return p, stores, q
}

func seedSubscriber(t *testing.T, stores *store.Stores, subscriberID, firstName, email, phone string) {
	t.Helper()

	err := stores.Subscribers.Create(context.Background(), &subscriber.Subscriber{
		ID:             idgen.SubscriberID(),
		OrganizationID: testEnv.OrganizationID,
		EnvironmentID:  testEnv.EnvironmentID,
		SubscriberID:   subscriberID,
		FirstName:      firstName,
		Email:          email,
		Phone:          phone,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
}

func seedTopic(t *testing.T, stores *store.Stores, key string, members ...string) {
	t.Helper()

	ctx := context.Background()
	err := stores.Topics.Create(ctx, &topic.Topic{
		ID:             idgen.TopicID(),
		OrganizationID: testEnv.OrganizationID,
		EnvironmentID:  testEnv.EnvironmentID,
		Key:            key,
		Name:           key,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	_, err = stores.Topics.AddSubscribers(ctx, testEnv.EnvironmentID, key, members)
	require.NoError(t, err)
}

func logTexts(t *testing.T, stores *store.Stores) []string {
	t.Helper()

	entries, err := stores.Logs.List(context.Background(), testEnv.OrganizationID, testEnv.EnvironmentID)
	require.NoError(t, err)

	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return texts
}

func TestTriggerFanOut(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")
	seedSubscriber(t, stores, "bob", "Bob", "bob@example.com", "")

	result, err := p.Trigger(context.Background(), testEnv, &Request{
		Name:    "welcome",
		To:      []any{"alice", "bob"},
		Payload: map[string]any{"project": "relayhub"},
	})
	require.NoError(t, err)

	assert.True(t, result.Acknowledged)
	assert.Equal(t, "processed", result.Status)
	assert.NotEmpty(t, result.TransactionID)

	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		notifications, err := stores.Notifications.ListBySubscriber(ctx, testEnv.EnvironmentID, id)
		require.NoError(t, err)
		assert.Len(t, notifications, 1, "one notification per subscriber")
		assert.Equal(t, result.TransactionID, notifications[0].TransactionID)

		messages, err := stores.Messages.ListBySubscriber(ctx, testEnv.EnvironmentID, id, "")
		require.NoError(t, err)
		assert.Len(t, messages, 2, "one message per active step")
	}

	// One job per message, all handed off.
	assert.Equal(t, 4, q.Size())
}

func TestTriggerRenderedContent(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name:    "welcome",
		To:      []any{"alice"},
		Payload: map[string]any{"project": "relayhub"},
	})
	require.NoError(t, err)

	inApp, err := stores.Messages.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "alice", notification.ChannelInApp)
	require.NoError(t, err)
	require.Len(t, inApp, 1)
	assert.Equal(t, "Hello Alice", inApp[0].Content)
	assert.False(t, inApp[0].Seen)
	assert.Equal(t, "redirect", inApp[0].CTA["type"])

	emails, err := stores.Messages.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "alice", notification.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "Welcome to relayhub", emails[0].Content)
	assert.Equal(t, "Hi Alice", emails[0].Subject)
	assert.Equal(t, "alice@example.com", emails[0].Email)
}

func TestTriggerExecutionLogAtAcknowledgement(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")
	seedSubscriber(t, stores, "bob", "Bob", "bob@example.com", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To:   []any{"alice", "bob"},
	})
	require.NoError(t, err)

	// 1 aggregate + 2 processed + 2 in-app creations. Email creation
	// entries appear only once their jobs run.
	texts := logTexts(t, stores)
	require.Len(t, texts, 5)
	assert.Equal(t, notification.LogTriggerReceived, texts[0])
	assert.Equal(t, 2, countText(texts, notification.LogRequestProcessed))
	assert.Equal(t, 2, countText(texts, "In App message created"))
	assert.Equal(t, 0, countText(texts, "Email message created"))
}

func TestTriggerExecutionLogAfterDrain(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")
	seedSubscriber(t, stores, "bob", "Bob", "bob@example.com", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To:   []any{"alice", "bob"},
	})
	require.NoError(t, err)

	providers := provider.NewRegistry(logger.Discard)
	providers.Register(notification.ChannelEmail, provider.NewNoopSender("email"))

	runner := queue.NewRunner(q, NewJobHandler(stores, providers, logger.Discard, nil), 1, logger.Discard)
	require.NoError(t, runner.Drain(context.Background()))

	texts := logTexts(t, stores)
	require.Len(t, texts, 7)
	assert.Equal(t, 2, countText(texts, "Email message created"))
	assert.EqualValues(t, 4, runner.Processed())
	assert.EqualValues(t, 0, runner.Failed())
}

func TestTriggerSixSubscribersInApp(t *testing.T) {
	wf := &workflow.Workflow{
		ID:   "wfl_feed",
		Name: "feed-update",
		Steps: []workflow.Step{
			{Channel: notification.ChannelInApp, Content: "Update for {{.subscriber.subscriberId}}", Active: true},
		},
	}
	p, stores, _ := newTestPipeline(t, wf)

	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	for _, id := range ids {
		seedSubscriber(t, stores, id, id, "", "")
	}
	seedTopic(t, stores, "everyone", ids...)

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "feed-update",
		To: []any{
			map[string]any{"topicKey": "everyone"},
			"s1", "s2", // already expanded from the topic
		},
	})
	require.NoError(t, err)

	// 1 aggregate + 6 processed + 6 in-app creations, duplicates collapsed.
	texts := logTexts(t, stores)
	assert.Len(t, texts, 13)
}

func TestTriggerMixedRecipientsDeduplicated(t *testing.T) {
	wf := &workflow.Workflow{
		ID:   "wfl_feed",
		Name: "feed-update",
		Steps: []workflow.Step{
			{Channel: notification.ChannelInApp, Content: "Update for {{.subscriber.subscriberId}}", Active: true},
		},
	}
	p, stores, _ := newTestPipeline(t, wf)

	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		seedSubscriber(t, stores, id, id, "", "")
	}
	seedTopic(t, stores, "team-a", "s1", "s2")
	seedTopic(t, stores, "team-b", "s3", "s4")

	// Two topics, one individually listed id, one new inline definition,
	// plus an inline re-definition of a topic member that must collapse.
	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "feed-update",
		To: []any{
			map[string]any{"topicKey": "team-a"},
			map[string]any{"topicKey": "team-b"},
			"s5",
			map[string]any{"subscriberId": "s6", "firstName": "Frank"},
			map[string]any{"subscriberId": "s2", "firstName": "Imposter"},
		},
	})
	require.NoError(t, err)

	// 1 aggregate + 6 processed + 6 in-app creations.
	texts := logTexts(t, stores)
	assert.Len(t, texts, 13)

	ctx := context.Background()
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		notifications, err := stores.Notifications.ListBySubscriber(ctx, testEnv.EnvironmentID, id)
		require.NoError(t, err)
		assert.Len(t, notifications, 1, "subscriber %s delivered once", id)
	}

	// The duplicate inline definition never touched the stored record.
	s2, err := stores.Subscribers.FindBySubscriberID(ctx, testEnv.EnvironmentID, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", s2.FirstName)
}

func TestTriggerDeduplicatesAcrossTopics(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow())
	for _, id := range []string{"a", "b", "c"} {
		seedSubscriber(t, stores, id, id, "", "")
	}
	seedTopic(t, stores, "t1", "a", "b")
	seedTopic(t, stores, "t2", "b", "c")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To: []any{
			map[string]any{"topicKey": "t1"},
			map[string]any{"topicKey": "t2"},
			"a",
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		notifications, err := stores.Notifications.ListBySubscriber(ctx, testEnv.EnvironmentID, id)
		require.NoError(t, err)
		assert.Len(t, notifications, 1, "subscriber %s delivered once", id)
	}
}

func TestTriggerTopicListedTwice(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "a", "A", "", "")
	seedTopic(t, stores, "dup", "a")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To: []any{
			map[string]any{"topicKey": "dup"},
			map[string]any{"topicKey": "dup"},
		},
	})
	require.NoError(t, err)

	notifications, err := stores.Notifications.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "a")
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestTriggerEmptyTopic(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedTopic(t, stores, "empty")

	result, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To:   []any{map[string]any{"topicKey": "empty"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Acknowledged)
	assert.True(t, q.IsEmpty(), "an empty topic contributes no jobs")
}

func TestTriggerInlineRegistration(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow())

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To: []any{
			map[string]any{"subscriberId": "carol", "firstName": "Carol", "email": "carol@example.com"},
		},
	})
	require.NoError(t, err)

	sub, err := stores.Subscribers.FindBySubscriberID(context.Background(), testEnv.EnvironmentID, "carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", sub.FirstName)

	// Re-triggering with different profile fields must not overwrite
	// the stored record.
	_, err = p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To: []any{
			map[string]any{"subscriberId": "carol", "firstName": "Caroline"},
		},
	})
	require.NoError(t, err)

	sub, err = stores.Subscribers.FindBySubscriberID(context.Background(), testEnv.EnvironmentID, "carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", sub.FirstName)
	assert.Equal(t, "carol@example.com", sub.Email)
}

func TestTriggerUnknownSubscriberSkipped(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "", "")

	result, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To:   []any{"alice", "ghost"},
	})
	require.NoError(t, err)
	assert.True(t, result.Acknowledged)

	notifications, err := stores.Notifications.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "alice")
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
	assert.Equal(t, 2, q.Size(), "jobs only for resolved subscribers")
}

func TestTriggerUnknownWorkflow(t *testing.T) {
	p, _, _ := newTestPipeline(t, welcomeWorkflow())

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "nope",
		To:   []any{"alice"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTemplateNotFound, errors.CodeOf(err))
}

func TestTriggerUnknownTopic(t *testing.T) {
	p, _, _ := newTestPipeline(t, welcomeWorkflow())

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To:   []any{map[string]any{"topicKey": "missing"}},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTopicNotFound, errors.CodeOf(err))
}

func TestTriggerTopicsDisabled(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow(), WithTopicNotifications(false))
	seedSubscriber(t, stores, "a", "A", "", "")
	seedTopic(t, stores, "team", "a")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "welcome",
		To:   []any{map[string]any{"topicKey": "team"}},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidRecipient, errors.CodeOf(err))
}

func TestTriggerRenderFailureRejectsEverything(t *testing.T) {
	wf := &workflow.Workflow{
		ID:   "wfl_broken",
		Name: "broken",
		Steps: []workflow.Step{
			{Channel: notification.ChannelInApp, Content: "{{.unclosed", Active: true},
		},
	}
	p, stores, q := newTestPipeline(t, wf)
	seedSubscriber(t, stores, "alice", "Alice", "", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name: "broken",
		To:   []any{"alice"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTemplateRender, errors.CodeOf(err))

	// Nothing persisted, nothing enqueued.
	notifications, listErr := stores.Notifications.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "alice")
	require.NoError(t, listErr)
	assert.Empty(t, notifications)
	assert.Empty(t, logTexts(t, stores))
	assert.True(t, q.IsEmpty())
}

func TestTriggerQueueFullLeavesEarlierJobs(t *testing.T) {
	stores := store.NewMemoryStores()
	q := queue.NewMemoryQueue(1, logger.Discard)
	workflows := workflow.NewRegistry()
	require.NoError(t, workflows.Register(welcomeWorkflow()))
	p := NewPipeline(workflows, stores, q, logger.Discard)

	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")

	// Two jobs materialize but the queue only holds one. The caller gets
	// the error; the job that fit stays queued and the records stand.
	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name:    "welcome",
		To:      []any{"alice"},
		Payload: map[string]any{"project": "relayhub"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.CodeOf(err))

	ctx := context.Background()
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, notification.ChannelInApp, job.Channel)
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrQueueEmpty)

	messages, err := stores.Messages.ListBySubscriber(ctx, testEnv.EnvironmentID, "alice", "")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestTriggerSMSChannelFields(t *testing.T) {
	wf := &workflow.Workflow{
		ID:   "wfl_otp",
		Name: "otp",
		Steps: []workflow.Step{
			{Channel: notification.ChannelSMS, Content: "Your code is {{.payload.code}}", Active: true},
		},
	}
	p, stores, _ := newTestPipeline(t, wf)
	seedSubscriber(t, stores, "alice", "Alice", "", "+15550100")

	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name:    "otp",
		To:      []any{"alice"},
		Payload: map[string]any{"code": "123456"},
	})
	require.NoError(t, err)

	messages, err := stores.Messages.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "alice", notification.ChannelSMS)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Your code is 123456", messages[0].Content)
	assert.Equal(t, "+15550100", messages[0].Phone)
}

func TestTriggerAttachmentsPerChannel(t *testing.T) {
	p, stores, q := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "alice@example.com", "")

	attachments := []notification.Attachment{{Name: "invoice.pdf", Mime: "application/pdf"}}
	_, err := p.Trigger(context.Background(), testEnv, &Request{
		Name:        "welcome",
		To:          []any{"alice"},
		Attachments: attachments,
	})
	require.NoError(t, err)

	ctx := context.Background()
	emails, err := stores.Messages.ListBySubscriber(ctx, testEnv.EnvironmentID, "alice", notification.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, attachments, emails[0].Attachments)

	inApp, err := stores.Messages.ListBySubscriber(ctx, testEnv.EnvironmentID, "alice", notification.ChannelInApp)
	require.NoError(t, err)
	require.Len(t, inApp, 1)
	assert.Empty(t, inApp[0].Attachments)

	// The email job carries the attachments, the in-app job does not.
	for i := 0; i < 2; i++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if job.Channel == notification.ChannelEmail {
			assert.Equal(t, attachments, job.Attachments)
		} else {
			assert.Empty(t, job.Attachments)
		}
	}
}

func TestTriggerFreshTransactionIDs(t *testing.T) {
	p, stores, _ := newTestPipeline(t, welcomeWorkflow())
	seedSubscriber(t, stores, "alice", "Alice", "", "")

	first, err := p.Trigger(context.Background(), testEnv, &Request{Name: "welcome", To: []any{"alice"}})
	require.NoError(t, err)
	second, err := p.Trigger(context.Background(), testEnv, &Request{Name: "welcome", To: []any{"alice"}})
	require.NoError(t, err)

	assert.NotEqual(t, first.TransactionID, second.TransactionID)
}

func TestTriggerSkipsInactiveSteps(t *testing.T) {
	wf := &workflow.Workflow{
		ID:   "wfl_partial",
		Name: "partial",
		Steps: []workflow.Step{
			{Channel: notification.ChannelInApp, Content: "on", Active: true},
			{Channel: notification.ChannelEmail, Content: "off", Active: false},
		},
	}
	p, stores, q := newTestPipeline(t, wf)
	seedSubscriber(t, stores, "alice", "Alice", "", "")

	_, err := p.Trigger(context.Background(), testEnv, &Request{Name: "partial", To: []any{"alice"}})
	require.NoError(t, err)

	messages, err := stores.Messages.ListBySubscriber(context.Background(), testEnv.EnvironmentID, "alice", "")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, 1, q.Size())
}

func countText(texts []string, want string) int {
	n := 0
	for _, t := range texts {
		if t == want {
			n++
		}
	}
	return n
}
