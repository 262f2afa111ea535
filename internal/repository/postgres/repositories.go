package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users           *UserRepository
	ServiceAccounts *ServiceAccountRepository
	Publishers      *PublisherRepository
	Memberships     *MembershipRepository
	Roles           *RoleRepository
	Tokens          *TokenRepository
	Sessions        *SessionRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:           NewUserRepository(pool),
		ServiceAccounts: NewServiceAccountRepository(pool),
		Publishers:      NewPublisherRepository(pool),
		Memberships:     NewMembershipRepository(pool),
		Roles:           NewRoleRepository(pool),
		Tokens:          NewTokenRepository(pool),
		Sessions:        NewSessionRepository(pool),
	}
}
