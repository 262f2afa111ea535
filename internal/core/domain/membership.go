package domain

import "time"

// MembershipStatus enumerates states of a user-to-publisher binding.
type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusInvited   MembershipStatus = "invited"
	MembershipStatusSuspended MembershipStatus = "suspended"
	MembershipStatusRemoved   MembershipStatus = "removed"
)

// PrincipalPlaceholder marks a restriction value that the data layer must
// substitute with the authenticated principal's identifier.
const PrincipalPlaceholder = "@principal"

// Restriction is a row-level predicate attached to a membership. It narrows
// which rows a principal may see, never which actions it may perform; the
// data-access layer evaluates it, this core only carries it.
type Restriction struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// OwnedContentOnly restricts a membership to rows created by the principal.
func OwnedContentOnly() Restriction {
	return Restriction{Field: "created_by", Value: PrincipalPlaceholder}
}

// Membership binds a user to a publisher with a role, explicit grants and
// denials, and restriction predicates. At most one membership exists per
// (user, publisher) pair. Version increments on every mutation and keys the
// resolver cache.
type Membership struct {
	ID           string
	UserID       string
	PublisherID  string
	RoleName     string
	Status       MembershipStatus
	Grants       []string
	Denials      []string
	Restrictions []Restriction
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the membership admits requests.
func (m Membership) IsActive() bool {
	return m.Status == MembershipStatusActive
}
