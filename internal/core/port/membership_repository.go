package port

import (
	"context"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// MembershipRepository deals with user-to-publisher bindings. Every mutation
// bumps the membership version so resolver cache entries derived from the
// old state stop matching.
type MembershipRepository interface {
	Get(ctx context.Context, userID, publisherID string) (*domain.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Membership, error)
	UpdateGrants(ctx context.Context, membershipID string, grants, denials []string) (int64, error)
	UpdateRole(ctx context.Context, membershipID, roleName string) (int64, error)
	SetStatus(ctx context.Context, membershipID string, status domain.MembershipStatus) (int64, error)
}

// RoleRepository serves the read-only role catalog.
type RoleRepository interface {
	ListSystem(ctx context.Context) ([]domain.Role, error)
	ListByPublisher(ctx context.Context, publisherID string) ([]domain.Role, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)
}
