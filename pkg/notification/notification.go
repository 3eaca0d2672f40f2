// Package notification provides the canonical notification, message and
// execution log structures produced by the trigger fan-out pipeline.
package notification

import "time"

// Channel represents a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelChat  Channel = "chat"
)

// String returns the wire representation of the channel.
func (c Channel) String() string {
	return string(c)
}

// IsValid returns true if the channel is a known delivery medium.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush, ChannelChat:
		return true
	default:
		return false
	}
}

// DisplayName returns the channel name used in execution log text,
// e.g. "In App message created".
func (c Channel) DisplayName() string {
	switch c {
	case ChannelInApp:
		return "In App"
	case ChannelEmail:
		return "Email"
	case ChannelSMS:
		return "SMS"
	case ChannelPush:
		return "Push"
	case ChannelChat:
		return "Chat"
	default:
		return string(c)
	}
}

// SupportsAttachments reports whether messages on this channel carry
// trigger attachments verbatim. In-app feed entries never render them.
func (c Channel) SupportsAttachments() bool {
	switch c {
	case ChannelEmail, ChannelChat:
		return true
	default:
		return false
	}
}

// Attachment is an opaque file reference passed through from the trigger
// to the jobs of channels that render attachments.
type Attachment struct {
	Name string `json:"name"`
	Mime string `json:"mime,omitempty"`
	File string `json:"file,omitempty"`
}

// Notification groups all channel messages generated for one subscriber
// from one trigger. TransactionID is shared across the whole trigger.
type Notification struct {
	ID             string    `json:"_id"`
	OrganizationID string    `json:"organizationId"`
	EnvironmentID  string    `json:"environmentId"`
	SubscriberID   string    `json:"subscriberId"`
	TemplateID     string    `json:"templateId"`
	TransactionID  string    `json:"transactionId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Message is one channel-specific delivery produced from a notification.
type Message struct {
	ID             string         `json:"_id"`
	NotificationID string         `json:"notificationId"`
	OrganizationID string         `json:"organizationId"`
	EnvironmentID  string         `json:"environmentId"`
	SubscriberID   string         `json:"subscriberId"`
	TemplateID     string         `json:"templateId"`
	TransactionID  string         `json:"transactionId"`
	Channel        Channel        `json:"channel"`
	Content        string         `json:"content"`
	Subject        string         `json:"subject,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	CTA            map[string]any `json:"cta,omitempty"`
	Seen           bool           `json:"seen"`
	LastSeenDate   *time.Time     `json:"lastSeenDate,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// GetPayload returns a copy of the message payload.
func (m *Message) GetPayload() map[string]any {
	out := make(map[string]any, len(m.Payload))
	for k, v := range m.Payload {
		out[k] = v
	}
	return out
}

// LogEntry is one immutable execution log record. Entries are append-only
// and never updated or deleted by the pipeline.
type LogEntry struct {
	ID             string    `json:"_id"`
	OrganizationID string    `json:"organizationId"`
	EnvironmentID  string    `json:"environmentId"`
	SubscriberID   string    `json:"subscriberId,omitempty"`
	TransactionID  string    `json:"transactionId"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Log text for the fixed pipeline stages. Per-channel creation entries
// are built with ChannelMessageCreated.
const (
	LogTriggerReceived  = "Trigger request received"
	LogRequestProcessed = "Request processed"
)

// ChannelMessageCreated returns the log text for a materialized message
// on the given channel.
func ChannelMessageCreated(c Channel) string {
	return c.DisplayName() + " message created"
}
