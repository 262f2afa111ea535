package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

// MembershipAdminService mutates memberships. Every mutation bumps the
// membership version in the store and synchronously invalidates the resolver
// cache, so no request resolves against the superseded state.
type MembershipAdminService struct {
	memberships port.MembershipRepository
	resolver    *PermissionResolver
	catalog     *PermissionCatalog
	logger      *zap.Logger
}

// NewMembershipAdminService constructs a MembershipAdminService.
func NewMembershipAdminService(
	memberships port.MembershipRepository,
	resolver *PermissionResolver,
	catalog *PermissionCatalog,
	logger *zap.Logger,
) *MembershipAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipAdminService{
		memberships: memberships,
		resolver:    resolver,
		catalog:     catalog,
		logger:      logger,
	}
}

// Get returns the membership binding a user to a publisher.
func (s *MembershipAdminService) Get(ctx context.Context, userID, publisherID string) (*domain.Membership, error) {
	membership, err := s.lookup(ctx, userID, publisherID)
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// ListForUser returns every membership held by the user.
func (s *MembershipAdminService) ListForUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	return memberships, nil
}

// UpdateGrants replaces the explicit grant and denial lists and returns the
// new membership version.
func (s *MembershipAdminService) UpdateGrants(ctx context.Context, userID, publisherID string, grants, denials []string) (int64, error) {
	membership, err := s.lookup(ctx, userID, publisherID)
	if err != nil {
		return 0, err
	}

	version, err := s.memberships.UpdateGrants(ctx, membership.ID, normalizeScopes(grants), normalizeScopes(denials))
	if err != nil {
		return 0, fmt.Errorf("update membership grants: %w", err)
	}

	s.invalidate(ctx, userID, publisherID)

	return version, nil
}

// UpdateRole reassigns the membership's role and returns the new version.
func (s *MembershipAdminService) UpdateRole(ctx context.Context, userID, publisherID, roleName string) (int64, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return 0, fmt.Errorf("role name is required")
	}

	membership, err := s.lookup(ctx, userID, publisherID)
	if err != nil {
		return 0, err
	}

	if s.catalog != nil {
		if _, err := s.catalog.ResolveRole(ctx, roleName, publisherID); err != nil {
			return 0, err
		}
	}

	version, err := s.memberships.UpdateRole(ctx, membership.ID, roleName)
	if err != nil {
		return 0, fmt.Errorf("update membership role: %w", err)
	}

	s.invalidate(ctx, userID, publisherID)

	return version, nil
}

// SetStatus transitions the membership state and returns the new version.
func (s *MembershipAdminService) SetStatus(ctx context.Context, userID, publisherID string, status domain.MembershipStatus) (int64, error) {
	membership, err := s.lookup(ctx, userID, publisherID)
	if err != nil {
		return 0, err
	}

	version, err := s.memberships.SetStatus(ctx, membership.ID, status)
	if err != nil {
		return 0, fmt.Errorf("set membership status: %w", err)
	}

	s.invalidate(ctx, userID, publisherID)

	return version, nil
}

func (s *MembershipAdminService) lookup(ctx context.Context, userID, publisherID string) (*domain.Membership, error) {
	userID = strings.TrimSpace(userID)
	publisherID = strings.TrimSpace(publisherID)
	if userID == "" || publisherID == "" {
		return nil, fmt.Errorf("user id and publisher id are required")
	}

	membership, err := s.memberships.Get(ctx, userID, publisherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoMembership
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}

	return membership, nil
}

// invalidate drops the cached resolution. The version bump already fences
// stale entries; the eager delete just shortens the window.
func (s *MembershipAdminService) invalidate(ctx context.Context, userID, publisherID string) {
	if s.resolver == nil {
		return
	}
	if err := s.resolver.Invalidate(ctx, userID, publisherID); err != nil {
		s.logger.Warn("resolver cache invalidation failed",
			zap.String("user_id", userID),
			zap.String("publisher_id", publisherID),
			zap.Error(err),
		)
	}
}
