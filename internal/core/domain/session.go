package domain

import "time"

// Session represents a persisted login session bound to a user and the
// publisher context chosen at issuance.
type Session struct {
	ID           string
	UserID       string
	PublisherID  string
	IP           *string
	UserAgent    *string
	CreatedAt    time.Time
	LastSeen     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason *string
}

// IsActive reports whether the session is still valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Revoke marks the session as terminated. Returns true when the session
// changed state.
func (s *Session) Revoke(at time.Time, reason string) bool {
	if s.RevokedAt != nil {
		return false
	}
	s.RevokedAt = &at
	s.RevokeReason = &reason
	return true
}
