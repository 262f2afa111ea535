package domain

import "time"

// UserStatus enumerates possible user account states.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusArchived  UserStatus = "archived"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// CanAuthenticate reports whether the account may be used as a request principal.
func (u User) CanAuthenticate() bool {
	return u.Status == UserStatusActive
}

// ServiceAccountStatus enumerates possible service account states.
type ServiceAccountStatus string

const (
	ServiceAccountStatusActive    ServiceAccountStatus = "active"
	ServiceAccountStatusSuspended ServiceAccountStatus = "suspended"
	ServiceAccountStatusArchived  ServiceAccountStatus = "archived"
)

// ServiceAccount is a machine principal. PublisherID is nil for
// cross-publisher accounts.
type ServiceAccount struct {
	ID             string
	Name           string
	PublisherID    *string
	DeclaredScopes []string
	Status         ServiceAccountStatus
	CreatedAt      time.Time
}

// CanAuthenticate reports whether the service account may act as a principal.
func (a ServiceAccount) CanAuthenticate() bool {
	return a.Status == ServiceAccountStatusActive
}

// PrincipalKind tags the variant held by a Principal.
type PrincipalKind string

const (
	PrincipalKindUser           PrincipalKind = "user"
	PrincipalKindServiceAccount PrincipalKind = "service_account"
)

// Principal is the authenticated actor of a request: a user or a service
// account. Exactly one of the two pointers is set, matching Kind.
type Principal struct {
	Kind           PrincipalKind
	User           *User
	ServiceAccount *ServiceAccount
}

// UserPrincipal wraps a user as a request principal.
func UserPrincipal(user User) Principal {
	return Principal{Kind: PrincipalKindUser, User: &user}
}

// ServiceAccountPrincipal wraps a service account as a request principal.
func ServiceAccountPrincipal(account ServiceAccount) Principal {
	return Principal{Kind: PrincipalKindServiceAccount, ServiceAccount: &account}
}

// ID returns the stable identifier of the underlying actor.
func (p Principal) ID() string {
	switch p.Kind {
	case PrincipalKindUser:
		if p.User != nil {
			return p.User.ID
		}
	case PrincipalKindServiceAccount:
		if p.ServiceAccount != nil {
			return p.ServiceAccount.ID
		}
	}
	return ""
}

// CanAuthenticate reports whether the underlying actor is in an active state.
func (p Principal) CanAuthenticate() bool {
	switch p.Kind {
	case PrincipalKindUser:
		return p.User != nil && p.User.CanAuthenticate()
	case PrincipalKindServiceAccount:
		return p.ServiceAccount != nil && p.ServiceAccount.CanAuthenticate()
	}
	return false
}
