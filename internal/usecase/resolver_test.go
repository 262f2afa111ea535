package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

func editorCatalog() *PermissionCatalog {
	return NewPermissionCatalog(&stubRoleRepo{
		system: []domain.Role{
			{ID: "role-editor", Name: RoleEditor, Permissions: SystemRoleTemplates()[RoleEditor]},
			{ID: "role-viewer", Name: RoleViewer, Permissions: SystemRoleTemplates()[RoleViewer]},
		},
	}, nil)
}

func membershipFixture(userID, publisherID string) *domain.Membership {
	return &domain.Membership{
		ID:          "mem-1",
		UserID:      userID,
		PublisherID: publisherID,
		RoleName:    RoleEditor,
		Status:      domain.MembershipStatusActive,
		Version:     4,
	}
}

func userPrincipal(userID string) domain.Principal {
	return domain.UserPrincipal(domain.User{ID: userID, Status: domain.UserStatusActive})
}

func newTestResolver(memberships port.MembershipRepository, publishers port.PublisherRepository, cache port.ResolverCache) *PermissionResolver {
	return NewPermissionResolver(testConfig(), publishers, memberships, editorCatalog(), cache, nil)
}

func TestResolveUnionsGrantsAndSubtractsDenials(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			m := membershipFixture(userID, publisherID)
			m.Grants = []string{"royalties:read"}
			m.Denials = []string{"works:write", "royalties:read"}
			return m, nil
		},
	}

	resolver := newTestResolver(memberships, activePublisher("pub-1"), nil)

	resolved, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:   userPrincipal("user-1"),
		PublisherID: "pub-1",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if resolved.Permissions.Contains("works:write") {
		t.Fatal("denied permission must not survive role expansion")
	}
	// The same name granted and denied resolves to denied.
	if resolved.Permissions.Contains("royalties:read") {
		t.Fatal("denial must win over an explicit grant")
	}
	if !resolved.Permissions.Contains("works:read") {
		t.Fatal("role permission lost")
	}
}

func TestResolveNarrowsToCredentialScopes(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			return membershipFixture(userID, publisherID), nil
		},
	}

	resolver := newTestResolver(memberships, activePublisher("pub-1"), nil)

	resolved, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:        userPrincipal("user-1"),
		PublisherID:      "pub-1",
		CredentialScopes: []string{"works:read", "royalties:export"},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if got := resolved.Permissions.Names(); !reflect.DeepEqual(got, []string{"works:read"}) {
		t.Fatalf("narrowed set = %v, want [works:read]", got)
	}
}

func TestResolveEmptyScopesYieldNothing(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			return membershipFixture(userID, publisherID), nil
		},
	}

	resolver := newTestResolver(memberships, activePublisher("pub-1"), nil)

	resolved, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:        userPrincipal("user-1"),
		PublisherID:      "pub-1",
		CredentialScopes: []string{},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(resolved.Permissions) != 0 {
		t.Fatalf("scopeless credential resolved %v, want empty set", resolved.Permissions.Names())
	}
}

func TestResolveTenantSeparation(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			if publisherID != "pub-a" {
				return nil, repository.ErrNotFound
			}
			return membershipFixture(userID, publisherID), nil
		},
	}
	publishers := &stubPublisherRepo{
		getFn: func(_ context.Context, id string) (*domain.Publisher, error) {
			return &domain.Publisher{ID: id, Status: domain.PublisherStatusActive}, nil
		},
	}

	resolver := newTestResolver(memberships, publishers, nil)

	if _, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:   userPrincipal("user-1"),
		PublisherID: "pub-a",
	}); err != nil {
		t.Fatalf("member publisher rejected: %v", err)
	}

	_, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:   userPrincipal("user-1"),
		PublisherID: "pub-b",
	})
	if !errors.Is(err, ErrNoMembership) {
		t.Fatalf("foreign publisher = %v, want ErrNoMembership", err)
	}
}

func TestResolveSuspendedMembership(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			m := membershipFixture(userID, publisherID)
			m.Status = domain.MembershipStatusSuspended
			return m, nil
		},
	}

	resolver := newTestResolver(memberships, activePublisher("pub-1"), nil)

	_, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:   userPrincipal("user-1"),
		PublisherID: "pub-1",
	})
	if !errors.Is(err, ErrMembershipSuspended) {
		t.Fatalf("Resolve = %v, want ErrMembershipSuspended", err)
	}
}

func TestResolvePublisherGate(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			return membershipFixture(userID, publisherID), nil
		},
	}

	statuses := map[string]domain.PublisherStatus{
		"pub-active":    domain.PublisherStatusActive,
		"pub-trial":     domain.PublisherStatusTrial,
		"pub-suspended": domain.PublisherStatusSuspended,
		"pub-archived":  domain.PublisherStatusArchived,
	}
	publishers := &stubPublisherRepo{
		getFn: func(_ context.Context, id string) (*domain.Publisher, error) {
			status, ok := statuses[id]
			if !ok {
				return nil, repository.ErrNotFound
			}
			return &domain.Publisher{ID: id, Status: status}, nil
		},
	}

	cfg := testConfig()
	cfg.Auth.AllowTrialPublishers = false
	resolver := NewPermissionResolver(cfg, publishers, memberships, editorCatalog(), nil, nil)

	resolve := func(publisherID string) error {
		_, err := resolver.Resolve(context.Background(), ResolveInput{
			Principal:   userPrincipal("user-1"),
			PublisherID: publisherID,
		})
		return err
	}

	if err := resolve("pub-active"); err != nil {
		t.Fatalf("active publisher rejected: %v", err)
	}
	for _, publisherID := range []string{"pub-trial", "pub-suspended", "pub-archived", "pub-missing"} {
		if err := resolve(publisherID); !errors.Is(err, ErrPublisherInaccessible) {
			t.Fatalf("%s = %v, want ErrPublisherInaccessible", publisherID, err)
		}
	}

	// Trial tenants open up when the flag allows them.
	cfg.Auth.AllowTrialPublishers = true
	if err := resolve("pub-trial"); err != nil {
		t.Fatalf("trial publisher rejected with flag enabled: %v", err)
	}
}

func TestResolveServiceAccountPublisherBound(t *testing.T) {
	boundTo := "pub-1"
	account := domain.ServiceAccount{
		ID:             "svc-1",
		PublisherID:    &boundTo,
		DeclaredScopes: []string{"works:read", "agreements:read"},
		Status:         domain.ServiceAccountStatusActive,
	}

	publishers := &stubPublisherRepo{
		getFn: func(_ context.Context, id string) (*domain.Publisher, error) {
			return &domain.Publisher{ID: id, Status: domain.PublisherStatusActive}, nil
		},
	}
	resolver := newTestResolver(&stubMembershipRepo{}, publishers, nil)

	resolved, err := resolver.Resolve(context.Background(), ResolveInput{
		Principal:   domain.ServiceAccountPrincipal(account),
		PublisherID: "pub-1",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got := resolved.Permissions.Names(); !reflect.DeepEqual(got, []string{"agreements:read", "works:read"}) {
		t.Fatalf("declared scopes = %v", got)
	}

	_, err = resolver.Resolve(context.Background(), ResolveInput{
		Principal:   domain.ServiceAccountPrincipal(account),
		PublisherID: "pub-other",
	})
	if !errors.Is(err, ErrNoMembership) {
		t.Fatalf("foreign tenant = %v, want ErrNoMembership", err)
	}
}

func TestResolveCacheVersionFence(t *testing.T) {
	version := int64(4)
	catalogReads := 0
	roles := &stubRoleRepo{
		system: []domain.Role{
			{ID: "role-editor", Name: RoleEditor, Permissions: SystemRoleTemplates()[RoleEditor]},
		},
	}
	catalog := NewPermissionCatalog(&countingRoleRepo{inner: roles, reads: &catalogReads}, nil)
	// Reload on every resolution so the read count tracks role expansions.
	catalog.WithRefreshInterval(0)

	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			m := membershipFixture(userID, publisherID)
			m.Version = version
			return m, nil
		},
	}
	cache := newStubResolverCache()

	resolver := NewPermissionResolver(testConfig(), activePublisher("pub-1"), memberships, catalog, cache, nil)

	input := ResolveInput{Principal: userPrincipal("user-1"), PublisherID: "pub-1"}

	if _, err := resolver.Resolve(context.Background(), input); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}
	coldReads := catalogReads

	// Same version serves from cache without touching the catalog.
	if _, err := resolver.Resolve(context.Background(), input); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if catalogReads != coldReads {
		t.Fatal("warm resolve must not re-expand the role")
	}

	// A bumped membership version fences the stale entry out.
	version = 5
	if _, err := resolver.Resolve(context.Background(), input); err != nil {
		t.Fatalf("post-mutation Resolve: %v", err)
	}
	if catalogReads == coldReads {
		t.Fatal("stale cache entry served after membership mutation")
	}
}

type countingRoleRepo struct {
	inner port.RoleRepository
	reads *int
}

func (c *countingRoleRepo) ListSystem(ctx context.Context) ([]domain.Role, error) {
	*c.reads++
	return c.inner.ListSystem(ctx)
}

func (c *countingRoleRepo) ListByPublisher(ctx context.Context, publisherID string) ([]domain.Role, error) {
	return c.inner.ListByPublisher(ctx, publisherID)
}

func (c *countingRoleRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return c.inner.ListPermissions(ctx)
}

func TestInvalidateDropsCacheEntry(t *testing.T) {
	memberships := &stubMembershipRepo{
		getFn: func(_ context.Context, userID, publisherID string) (*domain.Membership, error) {
			return membershipFixture(userID, publisherID), nil
		},
	}
	cache := newStubResolverCache()
	resolver := newTestResolver(memberships, activePublisher("pub-1"), cache)

	input := ResolveInput{Principal: userPrincipal("user-1"), PublisherID: "pub-1"}
	if _, err := resolver.Resolve(context.Background(), input); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if err := resolver.Invalidate(context.Background(), "user-1", "pub-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "user-1:pub-1" {
		t.Fatalf("invalidated = %v", cache.invalidated)
	}
}
