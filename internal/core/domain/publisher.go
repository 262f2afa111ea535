package domain

import "time"

// PublisherStatus enumerates tenant states.
type PublisherStatus string

const (
	PublisherStatusActive    PublisherStatus = "active"
	PublisherStatusTrial     PublisherStatus = "trial"
	PublisherStatusSuspended PublisherStatus = "suspended"
	PublisherStatusArchived  PublisherStatus = "archived"
)

// Publisher is the tenant unit. Every tenant-scoped query and permission
// check is anchored to exactly one publisher.
type Publisher struct {
	ID        string
	Name      string
	Status    PublisherStatus
	CreatedAt time.Time
}

// Accessible reports whether requests may be served within this tenant.
// Trial tenants are admitted when allowTrial is set by policy.
func (p Publisher) Accessible(allowTrial bool) bool {
	if p.Status == PublisherStatusActive {
		return true
	}
	return allowTrial && p.Status == PublisherStatusTrial
}
