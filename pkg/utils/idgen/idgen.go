// Package idgen provides ID generation for RelayHub records.
// All ids are UUID-backed with a short type prefix so a bare id in a
// log line identifies the record kind it belongs to.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator defines the interface for ID generation.
type Generator interface {
	// Generate creates a new unique ID.
	Generate() string
	// GenerateWithPrefix creates a new unique ID with the given prefix.
	GenerateWithPrefix(prefix string) string
}

// UUIDGenerator implements Generator using random UUIDs.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID-backed generator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate creates a new unique ID.
func (g *UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// GenerateWithPrefix creates a new unique ID with the given prefix.
func (g *UUIDGenerator) GenerateWithPrefix(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

var defaultGenerator Generator = NewUUIDGenerator()

// TransactionID generates the correlation id shared by everything one
// trigger call produces.
func TransactionID() string {
	return defaultGenerator.GenerateWithPrefix("trx")
}

// NotificationID generates a notification id.
func NotificationID() string {
	return defaultGenerator.GenerateWithPrefix("ntf")
}

// MessageID generates a message id.
func MessageID() string {
	return defaultGenerator.GenerateWithPrefix("msg")
}

// JobID generates a job id.
func JobID() string {
	return defaultGenerator.GenerateWithPrefix("job")
}

// SubscriberID generates an internal subscriber record id. The
// externally supplied subscriberId is a separate field.
func SubscriberID() string {
	return defaultGenerator.GenerateWithPrefix("sub")
}

// TopicID generates a topic id.
func TopicID() string {
	return defaultGenerator.GenerateWithPrefix("top")
}

// WorkflowID generates a workflow template id.
func WorkflowID() string {
	return defaultGenerator.GenerateWithPrefix("wfl")
}

// LogEntryID generates an execution log entry id.
func LogEntryID() string {
	return defaultGenerator.GenerateWithPrefix("log")
}
