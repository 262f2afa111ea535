package domain

import (
	"sort"
	"strings"
	"time"
)

// Permission is an atomic capability identifier of the form "resource:action".
// Catalog entries are immutable; superseded entries are deprecated, never
// deleted.
type Permission struct {
	ID          string
	Resource    string
	Action      string
	Description *string
	Deprecated  bool
}

// Name returns the canonical "resource:action" identifier.
func (p Permission) Name() string {
	return p.Resource + ":" + p.Action
}

// Role bundles permissions under a name. System roles have a nil PublisherID
// and are visible to every tenant; publisher roles are scoped to one tenant.
// ParentName references an optional role to inherit from within the same
// scope chain.
type Role struct {
	ID          string
	Name        string
	PublisherID *string
	ParentName  *string
	Permissions []string
	Description *string
	CreatedAt   time.Time
}

// IsSystem reports whether the role is a system-defined template.
func (r Role) IsSystem() bool {
	return r.PublisherID == nil
}

// PermissionSet is an immutable-by-convention set of permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the supplied names, trimming blanks.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Contains reports whether the set grants the named permission, honouring
// "resource:*" and global "*" wildcards held in the set.
func (s PermissionSet) Contains(name string) bool {
	if len(s) == 0 {
		return false
	}
	if _, ok := s[name]; ok {
		return true
	}
	if _, ok := s["*"]; ok {
		return true
	}
	if idx := strings.IndexByte(name, ':'); idx > 0 {
		if _, ok := s[name[:idx]+":*"]; ok {
			return true
		}
	}
	return false
}

// Union returns a new set holding members of both sets.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	result := make(PermissionSet, len(s)+len(other))
	for name := range s {
		result[name] = struct{}{}
	}
	for name := range other {
		result[name] = struct{}{}
	}
	return result
}

// Intersect returns a new set holding members present in both sets. Wildcards
// in either operand admit matching concrete names from the other, so an
// over-broad "works:*" scope intersected with {works:read} yields works:read
// and nothing more.
func (s PermissionSet) Intersect(other PermissionSet) PermissionSet {
	result := make(PermissionSet)
	for name := range s {
		if other.Contains(name) {
			result[name] = struct{}{}
		}
	}
	for name := range other {
		if s.Contains(name) {
			result[name] = struct{}{}
		}
	}
	return result
}

// Subtract returns a new set with the members of other removed. A denial of
// "resource:*" removes every concrete action under that resource.
func (s PermissionSet) Subtract(other PermissionSet) PermissionSet {
	result := make(PermissionSet, len(s))
	for name := range s {
		if other.Contains(name) {
			continue
		}
		result[name] = struct{}{}
	}
	return result
}

// Names returns the sorted member list.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
