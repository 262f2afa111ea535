package domain

import "time"

// SecurityContext is the immutable, request-scoped outcome of authentication
// and permission resolution. It is constructed once per request, handed to
// the data layer for tenant scoping, and discarded at request end. It is
// never persisted, cached, or shared between requests.
type SecurityContext struct {
	principal     Principal
	publisherID   string
	permissions   PermissionSet
	restrictions  []Restriction
	credential    CredentialKind
	tokenID       string
	sessionID     string
	establishedAt time.Time
}

// NewSecurityContext freezes the supplied resolution into a context value.
// The permission set and restriction slice are copied so later mutation of
// the inputs cannot leak into the context.
func NewSecurityContext(
	principal Principal,
	publisherID string,
	permissions PermissionSet,
	restrictions []Restriction,
	credential CredentialKind,
	tokenID string,
	sessionID string,
	at time.Time,
) *SecurityContext {
	perms := make(PermissionSet, len(permissions))
	for name := range permissions {
		perms[name] = struct{}{}
	}
	preds := make([]Restriction, len(restrictions))
	copy(preds, restrictions)

	return &SecurityContext{
		principal:     principal,
		publisherID:   publisherID,
		permissions:   perms,
		restrictions:  preds,
		credential:    credential,
		tokenID:       tokenID,
		sessionID:     sessionID,
		establishedAt: at,
	}
}

// Principal returns the authenticated actor.
func (c *SecurityContext) Principal() Principal { return c.principal }

// PublisherID returns the active tenant identifier.
func (c *SecurityContext) PublisherID() string { return c.publisherID }

// CredentialKind returns the kind of bearer credential presented.
func (c *SecurityContext) CredentialKind() CredentialKind { return c.credential }

// TokenID returns the stored token identifier for opaque credentials,
// empty for session tokens.
func (c *SecurityContext) TokenID() string { return c.tokenID }

// SessionID returns the server-side session identifier for session
// credentials, empty otherwise.
func (c *SecurityContext) SessionID() string { return c.sessionID }

// EstablishedAt returns the moment the context was frozen.
func (c *SecurityContext) EstablishedAt() time.Time { return c.establishedAt }

// Allows reports whether the effective permission set grants the named
// permission.
func (c *SecurityContext) Allows(permission string) bool {
	return c.permissions.Contains(permission)
}

// Permissions returns a copy of the effective permission set.
func (c *SecurityContext) Permissions() PermissionSet {
	perms := make(PermissionSet, len(c.permissions))
	for name := range c.permissions {
		perms[name] = struct{}{}
	}
	return perms
}

// TenantScope returns the single pair the data-access layer consumes to
// scope row-level isolation: the active publisher and the restriction
// predicates. No other path may carry tenant scope.
func (c *SecurityContext) TenantScope() (string, []Restriction) {
	preds := make([]Restriction, len(c.restrictions))
	copy(preds, c.restrictions)
	return c.publisherID, preds
}
