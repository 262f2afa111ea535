package port

import (
	"context"
	"time"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// RevocationStore caches token revocation state so a revoke committed on one
// instance is visible to verifies everywhere before the database round-trip.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, tokenID, reason string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, string, error)
}

// RateLimitStore maintains per-token fixed-window usage counters. Allow
// increments and checks in one atomic step; callers must never split the
// check from the increment.
type RateLimitStore interface {
	Allow(ctx context.Context, tokenID string, limit int, window time.Duration) (bool, error)
}

// ResolvedGrant is a cached permission resolution for one
// (principal, publisher) pair at a specific membership version.
type ResolvedGrant struct {
	MembershipVersion int64                `json:"membership_version"`
	Permissions       []string             `json:"permissions"`
	Restrictions      []domain.Restriction `json:"restrictions,omitempty"`
	RoleName          string               `json:"role_name,omitempty"`
}

// ResolverCache stores permission resolutions keyed by principal and
// publisher. Invalidate must be called synchronously by whatever mutates the
// underlying membership or role; the TTL is only a backstop.
type ResolverCache interface {
	Get(ctx context.Context, principalID, publisherID string) (*ResolvedGrant, error)
	Set(ctx context.Context, principalID, publisherID string, grant ResolvedGrant, ttl time.Duration) error
	Invalidate(ctx context.Context, principalID, publisherID string) error
}
