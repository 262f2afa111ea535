package usecase

import "errors"

// Authentication and authorization failures are sentinel values so the
// transport layer can map each to a stable HTTP status and reason code.
var (
	// ErrMalformedCredential indicates the bearer string matched no known
	// credential format.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrSignatureInvalid indicates a structurally valid credential whose
	// secret or signature failed verification.
	ErrSignatureInvalid = errors.New("credential signature invalid")
	// ErrTokenExpired indicates the credential is outside its validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates the credential has been revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRateLimitExceeded indicates the token exhausted its usage window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrPrincipalInactive indicates the underlying user or service account
	// is not in an active state.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrNoMembership indicates the principal holds no membership in the
	// requested publisher.
	ErrNoMembership = errors.New("no membership in publisher")
	// ErrMembershipSuspended indicates the membership exists but is not active.
	ErrMembershipSuspended = errors.New("membership suspended")
	// ErrPublisherInaccessible indicates the publisher tenant does not admit
	// requests in its current state.
	ErrPublisherInaccessible = errors.New("publisher inaccessible")
	// ErrPermissionDenied indicates the effective permission set does not
	// grant the attempted operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSessionLimitExceeded indicates the user reached the concurrent
	// session cap and eviction is disabled.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrSessionInactive indicates the referenced session is revoked,
	// expired, or unknown.
	ErrSessionInactive = errors.New("session inactive")
	// ErrStoreUnavailable indicates the backing store could not answer within
	// the bounded retry policy. Verification fails closed on it.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidCredentials indicates a failed interactive login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRoleCycleDetected indicates the role inheritance chain loops.
	ErrRoleCycleDetected = errors.New("role inheritance cycle detected")
	// ErrUnknownRole indicates a membership references a role absent from
	// both the publisher and system catalogs.
	ErrUnknownRole = errors.New("unknown role")
)
