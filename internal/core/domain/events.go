package domain

import "time"

// AuthenticationEvent records the outcome of a credential check for the
// audit sink. Secrets never appear here; identifiers only.
type AuthenticationEvent struct {
	EventID     string
	Outcome     string
	Reason      string
	PrincipalID string
	PublisherID string
	Credential  CredentialKind
	TokenID     string
	IP          *string
	At          time.Time
	Metadata    map[string]any
}

// PermissionDeniedEvent records a rejected authorization decision.
type PermissionDeniedEvent struct {
	EventID     string
	PrincipalID string
	PublisherID string
	Permission  string
	At          time.Time
}

// TokenLifecycleEvent records token issuance, rotation, and revocation.
type TokenLifecycleEvent struct {
	EventID string
	Action  string
	TokenID string
	Kind    CredentialKind
	ActorID string
	Reason  string
	At      time.Time
}

const (
	TokenActionIssued  = "issued"
	TokenActionRotated = "rotated"
	TokenActionRevoked = "revoked"
)

// SessionLifecycleEvent records session creation and termination.
type SessionLifecycleEvent struct {
	EventID     string
	Action      string
	SessionID   string
	UserID      string
	PublisherID string
	Reason      string
	At          time.Time
}

const (
	SessionActionCreated    = "created"
	SessionActionTerminated = "terminated"
)
