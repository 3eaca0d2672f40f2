// Package store provides SQLite-backed store implementations for
// persistent deployments. The driver is the CGO-free modernc build.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/topic"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	environment_id  TEXT NOT NULL,
	subscriber_id   TEXT NOT NULL,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	push_tokens     TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL,
	UNIQUE (environment_id, subscriber_id)
);

CREATE TABLE IF NOT EXISTS topics (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	environment_id  TEXT NOT NULL,
	key             TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	UNIQUE (environment_id, key)
);

CREATE TABLE IF NOT EXISTS topic_subscribers (
	topic_id      TEXT NOT NULL,
	subscriber_id TEXT NOT NULL,
	position      INTEGER NOT NULL,
	PRIMARY KEY (topic_id, subscriber_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	environment_id  TEXT NOT NULL,
	subscriber_id   TEXT NOT NULL,
	template_id     TEXT NOT NULL,
	transaction_id  TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_subscriber
	ON notifications (environment_id, subscriber_id);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	notification_id TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	environment_id  TEXT NOT NULL,
	subscriber_id   TEXT NOT NULL,
	template_id     TEXT NOT NULL,
	transaction_id  TEXT NOT NULL,
	channel         TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	cta             TEXT NOT NULL DEFAULT 'null',
	seen            INTEGER NOT NULL DEFAULT 0,
	last_seen_date  TIMESTAMP,
	payload         TEXT NOT NULL DEFAULT 'null',
	attachments     TEXT NOT NULL DEFAULT 'null',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_subscriber
	ON messages (environment_id, subscriber_id, channel);

CREATE TABLE IF NOT EXISTS execution_logs (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	environment_id  TEXT NOT NULL,
	subscriber_id   TEXT NOT NULL DEFAULT '',
	transaction_id  TEXT NOT NULL,
	text            TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	seq             INTEGER
);
CREATE INDEX IF NOT EXISTS idx_logs_environment
	ON execution_logs (organization_id, environment_id);
`

// OpenSQLite opens (or creates) the SQLite database at dsn and
// initializes the schema. WAL mode keeps concurrent triggers from
// blocking each other on insert.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

// NewSQLiteStores creates the full set of SQLite-backed collections
// over an initialized database handle.
func NewSQLiteStores(db *sql.DB) *Stores {
	return &Stores{
		Subscribers:   &sqliteSubscriberStore{db: db},
		Topics:        &sqliteTopicStore{db: db},
		Notifications: &sqliteNotificationStore{db: db},
		Messages:      &sqliteMessageStore{db: db},
		Logs:          &sqliteLogStore{db: db},
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

type sqliteSubscriberStore struct {
	db *sql.DB
}

func (s *sqliteSubscriberStore) Create(ctx context.Context, sub *subscriber.Subscriber) error {
	tokens, err := json.Marshal(sub.PushTokens)
	if err != nil {
		return fmt.Errorf("encode push tokens: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscribers
			(id, organization_id, environment_id, subscriber_id,
			 first_name, last_name, email, phone, push_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.OrganizationID, sub.EnvironmentID, sub.SubscriberID,
		sub.FirstName, sub.LastName, sub.Email, sub.Phone, string(tokens), sub.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteSubscriberStore) FindBySubscriberID(ctx context.Context, environmentID, subscriberID string) (*subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, environment_id, subscriber_id,
		       first_name, last_name, email, phone, push_tokens, created_at
		FROM subscribers
		WHERE environment_id = ? AND subscriber_id = ?`,
		environmentID, subscriberID)

	var sub subscriber.Subscriber
	var tokens string
	err := row.Scan(&sub.ID, &sub.OrganizationID, &sub.EnvironmentID, &sub.SubscriberID,
		&sub.FirstName, &sub.LastName, &sub.Email, &sub.Phone, &tokens, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tokens), &sub.PushTokens); err != nil {
		return nil, fmt.Errorf("decode push tokens: %w", err)
	}
	return &sub, nil
}

type sqliteTopicStore struct {
	db *sql.DB
}

func (s *sqliteTopicStore) Create(ctx context.Context, t *topic.Topic) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, organization_id, environment_id, key, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrganizationID, t.EnvironmentID, t.Key, t.Name, t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteTopicStore) FindByKey(ctx context.Context, environmentID, key string) (*topic.Topic, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, environment_id, key, name, created_at
		FROM topics
		WHERE environment_id = ? AND key = ?`,
		environmentID, key)

	var t topic.Topic
	err := row.Scan(&t.ID, &t.OrganizationID, &t.EnvironmentID, &t.Key, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT subscriber_id FROM topic_subscribers
		WHERE topic_id = ? ORDER BY position`, t.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		t.Subscribers = append(t.Subscribers, id)
	}
	return &t, rows.Err()
}

func (s *sqliteTopicStore) AddSubscribers(ctx context.Context, environmentID, key string, subscriberIDs []string) ([]string, error) {
	t, err := s.FindByKey(ctx, environmentID, key)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	succeeded := make([]string, 0, len(subscriberIDs))
	position := len(t.Subscribers)
	for _, id := range subscriberIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO topic_subscribers (topic_id, subscriber_id, position)
			VALUES (?, ?, ?)`, t.ID, id, position)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			position++
		}
		succeeded = append(succeeded, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return succeeded, nil
}

type sqliteNotificationStore struct {
	db *sql.DB
}

func (s *sqliteNotificationStore) Create(ctx context.Context, n *notification.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
			(id, organization_id, environment_id, subscriber_id, template_id, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OrganizationID, n.EnvironmentID, n.SubscriberID, n.TemplateID, n.TransactionID, n.CreatedAt)
	return err
}

func (s *sqliteNotificationStore) ListBySubscriber(ctx context.Context, environmentID, subscriberID string) ([]*notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, environment_id, subscriber_id, template_id, transaction_id, created_at
		FROM notifications
		WHERE environment_id = ? AND subscriber_id = ?
		ORDER BY created_at, id`,
		environmentID, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*notification.Notification, 0)
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.OrganizationID, &n.EnvironmentID, &n.SubscriberID,
			&n.TemplateID, &n.TransactionID, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}

type sqliteMessageStore struct {
	db *sql.DB
}

func (s *sqliteMessageStore) Create(ctx context.Context, m *notification.Message) error {
	cta, err := json.Marshal(m.CTA)
	if err != nil {
		return fmt.Errorf("encode cta: %w", err)
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, notification_id, organization_id, environment_id, subscriber_id,
			 template_id, transaction_id, channel, content, subject, email, phone,
			 cta, seen, last_seen_date, payload, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.NotificationID, m.OrganizationID, m.EnvironmentID, m.SubscriberID,
		m.TemplateID, m.TransactionID, string(m.Channel), m.Content, m.Subject, m.Email, m.Phone,
		string(cta), boolToInt(m.Seen), m.LastSeenDate, string(payload), string(attachments), m.CreatedAt)
	return err
}

func (s *sqliteMessageStore) Get(ctx context.Context, id string) (*notification.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelect+` WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *sqliteMessageStore) ListBySubscriber(ctx context.Context, environmentID, subscriberID string, channel notification.Channel) ([]*notification.Message, error) {
	query := messageSelect + ` WHERE environment_id = ? AND subscriber_id = ?`
	args := []any{environmentID, subscriberID}
	if channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(channel))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*notification.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

const messageSelect = `
	SELECT id, notification_id, organization_id, environment_id, subscriber_id,
	       template_id, transaction_id, channel, content, subject, email, phone,
	       cta, seen, last_seen_date, payload, attachments, created_at
	FROM messages`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*notification.Message, error) {
	var m notification.Message
	var channel, cta, payload, attachments string
	var seen int
	var lastSeen sql.NullTime
	err := row.Scan(&m.ID, &m.NotificationID, &m.OrganizationID, &m.EnvironmentID, &m.SubscriberID,
		&m.TemplateID, &m.TransactionID, &channel, &m.Content, &m.Subject, &m.Email, &m.Phone,
		&cta, &seen, &lastSeen, &payload, &attachments, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Channel = notification.Channel(channel)
	m.Seen = seen != 0
	if lastSeen.Valid {
		t := lastSeen.Time
		m.LastSeenDate = &t
	}
	if err := json.Unmarshal([]byte(cta), &m.CTA); err != nil {
		return nil, fmt.Errorf("decode cta: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &m.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type sqliteLogStore struct {
	db *sql.DB
}

func (s *sqliteLogStore) Append(ctx context.Context, entry *notification.LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_logs
			(id, organization_id, environment_id, subscriber_id, transaction_id, text, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM execution_logs))`,
		entry.ID, entry.OrganizationID, entry.EnvironmentID, entry.SubscriberID,
		entry.TransactionID, entry.Text, entry.CreatedAt)
	return err
}

func (s *sqliteLogStore) List(ctx context.Context, organizationID, environmentID string) ([]*notification.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, environment_id, subscriber_id, transaction_id, text, created_at
		FROM execution_logs
		WHERE organization_id = ? AND environment_id = ?
		ORDER BY seq`,
		organizationID, environmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*notification.LogEntry, 0)
	for rows.Next() {
		var e notification.LogEntry
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.EnvironmentID, &e.SubscriberID,
			&e.TransactionID, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
