// Package topic defines the persistent subscriber groups addressable by
// a stable key in trigger recipient lists.
package topic

import "time"

// Topic is a named group of subscribers. Key is unique per environment.
// Subscribers holds external subscriber ids in registration order.
type Topic struct {
	ID             string    `json:"_id"`
	OrganizationID string    `json:"organizationId"`
	EnvironmentID  string    `json:"environmentId"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Subscribers    []string  `json:"subscribers"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Has reports whether the external subscriber id is already registered.
func (t *Topic) Has(subscriberID string) bool {
	for _, id := range t.Subscribers {
		if id == subscriberID {
			return true
		}
	}
	return false
}
