package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/topic"
)

func newSQLiteStores(t *testing.T) *store.Stores {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "relayhub.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return store.NewSQLiteStores(db)
}

func TestSQLiteSubscriberRoundTrip(t *testing.T) {
	stores := newSQLiteStores(t)
	ctx := context.Background()

	sub := &subscriber.Subscriber{
		ID:             "sub_1",
		OrganizationID: "org_1",
		EnvironmentID:  "env_1",
		SubscriberID:   "alice",
		FirstName:      "Alice",
		Email:          "alice@example.com",
		PushTokens:     []string{"token-1"},
		CreatedAt:      time.Now().UTC(),
	}
	if err := stores.Subscribers.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := stores.Subscribers.Create(ctx, &subscriber.Subscriber{
		ID: "sub_2", EnvironmentID: "env_1", SubscriberID: "alice", CreatedAt: time.Now(),
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	found, err := stores.Subscribers.FindBySubscriberID(ctx, "env_1", "alice")
	if err != nil {
		t.Fatalf("FindBySubscriberID failed: %v", err)
	}
	if found.FirstName != "Alice" || found.Email != "alice@example.com" {
		t.Errorf("Stored profile did not round-trip: %+v", found)
	}
	if len(found.PushTokens) != 1 || found.PushTokens[0] != "token-1" {
		t.Errorf("Push tokens did not round-trip: %v", found.PushTokens)
	}

	if _, err := stores.Subscribers.FindBySubscriberID(ctx, "env_1", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteTopicMembership(t *testing.T) {
	stores := newSQLiteStores(t)
	ctx := context.Background()

	err := stores.Topics.Create(ctx, &topic.Topic{
		ID: "top_1", OrganizationID: "org_1", EnvironmentID: "env_1",
		Key: "team", Name: "Team", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err = stores.Topics.Create(ctx, &topic.Topic{
		ID: "top_2", EnvironmentID: "env_1", Key: "team", CreatedAt: time.Now(),
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	succeeded, err := stores.Topics.AddSubscribers(ctx, "env_1", "team", []string{"a", "b"})
	if err != nil {
		t.Fatalf("AddSubscribers failed: %v", err)
	}
	if len(succeeded) != 2 {
		t.Errorf("Expected 2 succeeded, got %d", len(succeeded))
	}

	// Re-adding an existing member succeeds without duplicating it.
	if _, err := stores.Topics.AddSubscribers(ctx, "env_1", "team", []string{"b", "c"}); err != nil {
		t.Fatalf("AddSubscribers failed: %v", err)
	}

	found, err := stores.Topics.FindByKey(ctx, "env_1", "team")
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(found.Subscribers) != len(want) {
		t.Fatalf("Expected members %v, got %v", want, found.Subscribers)
	}
	for i := range want {
		if found.Subscribers[i] != want[i] {
			t.Errorf("Member %d should be %s, got %s", i, want[i], found.Subscribers[i])
		}
	}
}

func TestSQLiteMessageRoundTrip(t *testing.T) {
	stores := newSQLiteStores(t)
	ctx := context.Background()

	msg := &notification.Message{
		ID:             "msg_1",
		NotificationID: "ntf_1",
		OrganizationID: "org_1",
		EnvironmentID:  "env_1",
		SubscriberID:   "alice",
		TemplateID:     "wfl_1",
		TransactionID:  "trx_1",
		Channel:        notification.ChannelEmail,
		Content:        "Welcome",
		Subject:        "Hi",
		Email:          "alice@example.com",
		Payload:        map[string]any{"project": "relayhub"},
		Attachments:    []notification.Attachment{{Name: "a.pdf", Mime: "application/pdf"}},
		CreatedAt:      time.Now().UTC(),
	}
	if err := stores.Messages.Create(ctx, msg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := stores.Messages.Get(ctx, "msg_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "Welcome" || got.Subject != "Hi" {
		t.Errorf("Message did not round-trip: %+v", got)
	}
	if got.Payload["project"] != "relayhub" {
		t.Errorf("Payload did not round-trip: %v", got.Payload)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Name != "a.pdf" {
		t.Errorf("Attachments did not round-trip: %v", got.Attachments)
	}

	filtered, err := stores.Messages.ListBySubscriber(ctx, "env_1", "alice", notification.ChannelEmail)
	if err != nil {
		t.Fatalf("ListBySubscriber failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Errorf("Expected 1 email message, got %d", len(filtered))
	}
}

func TestSQLiteLogAppendOrder(t *testing.T) {
	stores := newSQLiteStores(t)
	ctx := context.Background()

	// Identical timestamps must not disturb append order.
	now := time.Now().UTC()
	texts := []string{"Trigger request received", "Request processed", "In App message created"}
	for i, text := range texts {
		err := stores.Logs.Append(ctx, &notification.LogEntry{
			ID:             "log_" + string(rune('a'+i)),
			OrganizationID: "org_1",
			EnvironmentID:  "env_1",
			TransactionID:  "trx_1",
			Text:           text,
			CreatedAt:      now,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := stores.Logs.List(ctx, "org_1", "env_1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != len(texts) {
		t.Fatalf("Expected %d entries, got %d", len(texts), len(entries))
	}
	for i, want := range texts {
		if entries[i].Text != want {
			t.Errorf("Entry %d should be %q, got %q", i, want, entries[i].Text)
		}
	}
}
