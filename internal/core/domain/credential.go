package domain

import "time"

// CredentialKind tags the three bearer credential formats.
type CredentialKind string

const (
	CredentialKindSession CredentialKind = "session"
	CredentialKindService CredentialKind = "service"
	CredentialKindPAT     CredentialKind = "pat"
	CredentialKindUnknown CredentialKind = "unknown"
)

// TokenStatus enumerates lifecycle states of a stored token record.
type TokenStatus string

const (
	TokenStatusActive   TokenStatus = "active"
	TokenStatusRotating TokenStatus = "rotating"
	TokenStatusRevoked  TokenStatus = "revoked"
	TokenStatusExpired  TokenStatus = "expired"
)

// RateLimitPolicy caps verified uses of a token per fixed window.
type RateLimitPolicy struct {
	MaxPerWindow int
	Window       time.Duration
}

// TokenRecord is the persisted state of a service token or personal access
// token. The raw secret is never stored; SecretHash holds a one-way hash and
// PrevSecretHash retains the pre-rotation hash until the grace window ends.
type TokenRecord struct {
	ID               string
	Kind             CredentialKind
	Name             string
	SecretHash       string
	PrevSecretHash   *string
	RotationGraceEnd *time.Time
	UserID           *string
	ServiceAccountID *string
	PublisherID      *string
	Scopes           []string
	AllowedIPs       []string
	RateLimit        *RateLimitPolicy
	Status           TokenStatus
	Version          int64
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	LastUsedAt       *time.Time
	RevokedAt        *time.Time
}

// IsExpired reports whether the record has elapsed its validity window.
// Records without an expiry never expire.
func (t TokenRecord) IsExpired(at time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the record has been explicitly revoked.
func (t TokenRecord) IsRevoked() bool {
	return t.Status == TokenStatusRevoked || t.RevokedAt != nil
}

// InRotationGrace reports whether the pre-rotation secret is still honoured.
func (t TokenRecord) InRotationGrace(at time.Time) bool {
	if t.Status != TokenStatusRotating || t.RotationGraceEnd == nil {
		return false
	}
	return t.RotationGraceEnd.After(at)
}

// IPAllowed reports whether the presenting client address passes the
// record's allow-list. An empty allow-list admits every address.
func (t TokenRecord) IPAllowed(ip string) bool {
	if len(t.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range t.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}
