// Package subscriber defines the subscriber records the fan-out pipeline
// delivers to, and the inline definitions a trigger may carry.
package subscriber

import (
	"strings"
	"time"
)

// Subscriber is a stored delivery target. SubscriberID is the
// externally supplied identity, unique per environment; ID is the
// internal record id.
type Subscriber struct {
	ID             string    `json:"_id"`
	OrganizationID string    `json:"organizationId"`
	EnvironmentID  string    `json:"environmentId"`
	SubscriberID   string    `json:"subscriberId"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	PushTokens     []string  `json:"pushTokens,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FullName returns the subscriber's display name.
func (s *Subscriber) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// RenderContext exposes the profile fields available to channel step
// templates under the "subscriber" key.
func (s *Subscriber) RenderContext() map[string]any {
	return map[string]any{
		"subscriberId": s.SubscriberID,
		"firstName":    s.FirstName,
		"lastName":     s.LastName,
		"email":        s.Email,
		"phone":        s.Phone,
	}
}

// Definition is an inline subscriber definition supplied in a trigger's
// recipient list. It is upserted (create-if-absent) before fan-out.
type Definition struct {
	SubscriberID string `json:"subscriberId"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// Valid reports whether the definition carries the mandatory external id.
func (d Definition) Valid() bool {
	return d.SubscriberID != ""
}
