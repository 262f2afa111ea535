package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
)

// System role template names. Templates are seeded into the catalog with a
// nil publisher id and shared by every tenant.
const (
	RoleSuperAdmin     = "super_admin"
	RolePublisherAdmin = "publisher_admin"
	RoleManager        = "manager"
	RoleEditor         = "editor"
	RoleViewer         = "viewer"
	RoleAPIUser        = "api_user"
	RoleFinancialAdmin = "financial_admin"
)

// catalogRefreshInterval bounds how long a flattened snapshot serves before
// the role repository is consulted again.
const catalogRefreshInterval = time.Minute

// SystemRoleTemplates returns the built-in role seeds. Publisher-defined
// roles may shadow any of these names inside their own tenant.
func SystemRoleTemplates() map[string][]string {
	return map[string][]string{
		RoleSuperAdmin:     {"*"},
		RolePublisherAdmin: {"works:*", "writers:*", "agreements:*", "royalties:*", "members:*", "tokens:*", "settings:*"},
		RoleManager:        {"works:*", "writers:*", "agreements:*", "royalties:read", "members:read"},
		RoleEditor:         {"works:read", "works:write", "writers:read", "writers:write", "agreements:read"},
		RoleViewer:         {"works:read", "writers:read", "agreements:read", "royalties:read"},
		RoleAPIUser:        {"works:read", "writers:read", "agreements:read"},
		RoleFinancialAdmin: {"royalties:*", "agreements:read", "works:read"},
	}
}

// roleClosure is one role's pre-flattened permission set, or the definition
// error that prevents it from resolving.
type roleClosure struct {
	set domain.PermissionSet
	err error
}

// catalogSnapshot holds one publisher's scope chain with every inheritance
// chain already flattened, so request-time resolution is a map lookup.
type catalogSnapshot struct {
	closures map[string]roleClosure
	loadedAt time.Time
}

// PermissionCatalog resolves role names into flattened permission sets.
// Publisher roles shadow system roles of the same name. Inheritance chains
// are expanded once per snapshot load, with cycle detection, not on every
// resolution.
type PermissionCatalog struct {
	roles   port.RoleRepository
	logger  *zap.Logger
	refresh time.Duration
	now     func() time.Time

	mu        sync.Mutex
	snapshots map[string]*catalogSnapshot
}

// NewPermissionCatalog constructs a PermissionCatalog.
func NewPermissionCatalog(roles port.RoleRepository, logger *zap.Logger) *PermissionCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := &PermissionCatalog{
		roles:     roles,
		logger:    logger,
		refresh:   catalogRefreshInterval,
		snapshots: make(map[string]*catalogSnapshot),
	}
	catalog.now = func() time.Time { return time.Now().UTC() }
	return catalog
}

// WithClock overrides the catalog clock for deterministic tests.
func (c *PermissionCatalog) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

// WithRefreshInterval overrides how long snapshots serve before reloading.
// A non-positive interval reloads on every resolution.
func (c *PermissionCatalog) WithRefreshInterval(interval time.Duration) {
	c.refresh = interval
}

// ResolveRole returns roleName's flattened permission set within the
// publisher's scope chain. Publisher-defined roles win over system templates
// of the same name; system templates remain reachable as parents.
func (c *PermissionCatalog) ResolveRole(ctx context.Context, roleName, publisherID string) (domain.PermissionSet, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, fmt.Errorf("role name is required")
	}

	snapshot, err := c.snapshot(ctx, strings.TrimSpace(publisherID))
	if err != nil {
		return nil, err
	}

	closure, ok := snapshot.closures[roleName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, roleName)
	}
	if closure.err != nil {
		return nil, closure.err
	}

	return closure.set, nil
}

// ListRoles returns the roles visible within a publisher: its own roles plus
// the system templates its roles do not shadow.
func (c *PermissionCatalog) ListRoles(ctx context.Context, publisherID string) ([]domain.Role, error) {
	system, err := c.roles.ListSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("list system roles: %w", err)
	}

	var scoped []domain.Role
	if strings.TrimSpace(publisherID) != "" {
		scoped, err = c.roles.ListByPublisher(ctx, publisherID)
		if err != nil {
			return nil, fmt.Errorf("list publisher roles: %w", err)
		}
	}

	shadowed := make(map[string]struct{}, len(scoped))
	for _, role := range scoped {
		shadowed[role.Name] = struct{}{}
	}

	visible := make([]domain.Role, 0, len(scoped)+len(system))
	visible = append(visible, scoped...)
	for _, role := range system {
		if _, ok := shadowed[role.Name]; ok {
			continue
		}
		visible = append(visible, role)
	}

	return visible, nil
}

// ListPermissions returns the permission catalog, optionally filtering out
// deprecated entries.
func (c *PermissionCatalog) ListPermissions(ctx context.Context, includeDeprecated bool) ([]domain.Permission, error) {
	permissions, err := c.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}

	if includeDeprecated {
		return permissions, nil
	}

	active := permissions[:0]
	for _, permission := range permissions {
		if permission.Deprecated {
			continue
		}
		active = append(active, permission)
	}

	return active, nil
}

// snapshot returns the publisher's flattened scope chain, rebuilding it from
// the repository when the current one has aged out.
func (c *PermissionCatalog) snapshot(ctx context.Context, publisherID string) (*catalogSnapshot, error) {
	now := c.now()

	c.mu.Lock()
	cached, ok := c.snapshots[publisherID]
	c.mu.Unlock()
	if ok && c.refresh > 0 && now.Sub(cached.loadedAt) < c.refresh {
		return cached, nil
	}

	index, err := c.loadIndex(ctx, publisherID)
	if err != nil {
		return nil, err
	}

	built := &catalogSnapshot{
		closures: c.flatten(index, publisherID),
		loadedAt: now,
	}

	c.mu.Lock()
	c.snapshots[publisherID] = built
	c.mu.Unlock()

	return built, nil
}

// loadIndex builds the name lookup for one publisher's scope chain:
// publisher roles first, then system roles for names not shadowed.
func (c *PermissionCatalog) loadIndex(ctx context.Context, publisherID string) (map[string]domain.Role, error) {
	system, err := c.roles.ListSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("list system roles: %w", err)
	}

	index := make(map[string]domain.Role, len(system))
	for _, role := range system {
		index[role.Name] = role
	}

	if publisherID != "" {
		scoped, err := c.roles.ListByPublisher(ctx, publisherID)
		if err != nil {
			return nil, fmt.Errorf("list publisher roles: %w", err)
		}
		for _, role := range scoped {
			index[role.Name] = role
		}
	}

	return index, nil
}

// flatten expands every role's inheritance chain into its closure. A cycle
// poisons the roles on it; a broken parent link degrades to the permissions
// collected so far rather than failing live requests.
func (c *PermissionCatalog) flatten(index map[string]domain.Role, publisherID string) map[string]roleClosure {
	closures := make(map[string]roleClosure, len(index))

	for name := range index {
		set := domain.NewPermissionSet()
		visited := make(map[string]struct{})

		var cycleErr error
		current := name
		for current != "" {
			if _, seen := visited[current]; seen {
				cycleErr = fmt.Errorf("%w: %s", ErrRoleCycleDetected, current)
				break
			}
			visited[current] = struct{}{}

			role, ok := index[current]
			if !ok {
				c.logger.Warn("role parent not found, truncating chain",
					zap.String("role", current),
					zap.String("publisher_id", publisherID),
				)
				break
			}

			set = set.Union(domain.NewPermissionSet(role.Permissions...))

			if role.ParentName == nil {
				break
			}
			current = strings.TrimSpace(*role.ParentName)
		}

		if cycleErr != nil {
			closures[name] = roleClosure{err: cycleErr}
			continue
		}
		closures[name] = roleClosure{set: set}
	}

	return closures
}
