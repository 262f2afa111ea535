package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

// ResolveInput carries one (principal, publisher) resolution request.
// CredentialScopes is nil for credentials that carry the principal's full
// grant (sessions and unscoped tokens); a non-nil slice narrows the result
// and can never widen it.
type ResolveInput struct {
	Principal        domain.Principal
	PublisherID      string
	CredentialScopes []string
}

// Resolved is the outcome of permission resolution: the effective permission
// set plus the restriction predicates the data layer must apply.
type Resolved struct {
	Permissions       domain.PermissionSet
	Restrictions      []domain.Restriction
	RoleName          string
	MembershipVersion int64
}

// PermissionResolver computes effective permissions for a principal inside a
// publisher. The precedence is fixed: role expansion, union of explicit
// grants, subtraction of denials (a denial always wins), then intersection
// with the credential's declared scope.
type PermissionResolver struct {
	cfg         *config.AppConfig
	publishers  port.PublisherRepository
	memberships port.MembershipRepository
	catalog     *PermissionCatalog
	cache       port.ResolverCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewPermissionResolver constructs a PermissionResolver instance.
func NewPermissionResolver(
	cfg *config.AppConfig,
	publishers port.PublisherRepository,
	memberships port.MembershipRepository,
	catalog *PermissionCatalog,
	cache port.ResolverCache,
	logger *zap.Logger,
) *PermissionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver := &PermissionResolver{
		cfg:         cfg,
		publishers:  publishers,
		memberships: memberships,
		catalog:     catalog,
		cache:       cache,
		logger:      logger,
	}
	resolver.now = func() time.Time { return time.Now().UTC() }
	return resolver
}

// WithClock overrides the resolver clock for deterministic tests.
func (r *PermissionResolver) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Resolve computes the effective permission set for the input. The publisher
// and membership are always read from the authoritative store so suspension
// takes effect immediately; only the role expansion is served from cache,
// keyed by the membership version.
func (r *PermissionResolver) Resolve(ctx context.Context, input ResolveInput) (*Resolved, error) {
	publisherID := strings.TrimSpace(input.PublisherID)
	if publisherID == "" {
		return nil, ErrNoMembership
	}

	if err := r.checkPublisher(ctx, publisherID); err != nil {
		return nil, err
	}

	var resolved *Resolved
	var err error

	switch input.Principal.Kind {
	case domain.PrincipalKindUser:
		resolved, err = r.resolveUser(ctx, input.Principal, publisherID)
	case domain.PrincipalKindServiceAccount:
		resolved, err = r.resolveServiceAccount(input.Principal, publisherID)
	default:
		return nil, fmt.Errorf("unsupported principal kind: %s", input.Principal.Kind)
	}
	if err != nil {
		return nil, err
	}

	if input.CredentialScopes != nil {
		scope := domain.NewPermissionSet(input.CredentialScopes...)
		resolved.Permissions = resolved.Permissions.Intersect(scope)
	}

	return resolved, nil
}

// Invalidate drops the cached resolution for a (principal, publisher) pair.
// Membership and role mutations call this synchronously before returning.
func (r *PermissionResolver) Invalidate(ctx context.Context, principalID, publisherID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, principalID, publisherID)
}

func (r *PermissionResolver) checkPublisher(ctx context.Context, publisherID string) error {
	publisher, err := r.publishers.GetByID(ctx, publisherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPublisherInaccessible
		}
		return fmt.Errorf("get publisher: %w", err)
	}

	if !publisher.Accessible(r.cfg.Auth.AllowTrialPublishers) {
		return ErrPublisherInaccessible
	}

	return nil
}

func (r *PermissionResolver) resolveUser(ctx context.Context, principal domain.Principal, publisherID string) (*Resolved, error) {
	membership, err := r.memberships.Get(ctx, principal.ID(), publisherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoMembership
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}

	if !membership.IsActive() {
		return nil, ErrMembershipSuspended
	}

	if cached := r.cacheGet(ctx, principal.ID(), publisherID, membership.Version); cached != nil {
		return cached, nil
	}

	roleSet, err := r.catalog.ResolveRole(ctx, membership.RoleName, publisherID)
	if err != nil {
		return nil, err
	}

	grants := domain.NewPermissionSet(membership.Grants...)
	denials := domain.NewPermissionSet(membership.Denials...)
	effective := roleSet.Union(grants).Subtract(denials)

	resolved := &Resolved{
		Permissions:       effective,
		Restrictions:      membership.Restrictions,
		RoleName:          membership.RoleName,
		MembershipVersion: membership.Version,
	}

	r.cacheSet(ctx, principal.ID(), publisherID, resolved)

	return resolved, nil
}

// resolveServiceAccount derives permissions from the account's declared
// scopes. A publisher-bound account only resolves inside its own tenant.
func (r *PermissionResolver) resolveServiceAccount(principal domain.Principal, publisherID string) (*Resolved, error) {
	account := principal.ServiceAccount
	if account == nil {
		return nil, fmt.Errorf("service account principal missing account")
	}

	if account.PublisherID != nil && *account.PublisherID != publisherID {
		return nil, ErrNoMembership
	}

	return &Resolved{
		Permissions: domain.NewPermissionSet(account.DeclaredScopes...),
	}, nil
}

func (r *PermissionResolver) cacheGet(ctx context.Context, principalID, publisherID string, version int64) *Resolved {
	if r.cache == nil {
		return nil
	}

	grant, err := r.cache.Get(ctx, principalID, publisherID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("resolver cache read failed",
				zap.String("principal_id", principalID),
				zap.String("publisher_id", publisherID),
				zap.Error(err),
			)
		}
		return nil
	}

	// A version mismatch means the membership mutated after the entry was
	// written; treat it as a miss.
	if grant.MembershipVersion != version {
		return nil
	}

	return &Resolved{
		Permissions:       domain.NewPermissionSet(grant.Permissions...),
		Restrictions:      grant.Restrictions,
		RoleName:          grant.RoleName,
		MembershipVersion: grant.MembershipVersion,
	}
}

func (r *PermissionResolver) cacheSet(ctx context.Context, principalID, publisherID string, resolved *Resolved) {
	if r.cache == nil {
		return
	}

	ttl := r.cfg.Redis.ResolverTTL
	if ttl <= 0 {
		return
	}

	grant := port.ResolvedGrant{
		MembershipVersion: resolved.MembershipVersion,
		Permissions:       resolved.Permissions.Names(),
		Restrictions:      resolved.Restrictions,
		RoleName:          resolved.RoleName,
	}

	if err := r.cache.Set(ctx, principalID, publisherID, grant, ttl); err != nil {
		r.logger.Warn("resolver cache write failed",
			zap.String("principal_id", principalID),
			zap.String("publisher_id", publisherID),
			zap.Error(err),
		)
	}
}
