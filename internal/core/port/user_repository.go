package port

import (
	"context"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// UserRepository resolves user principals.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	RecordLogin(ctx context.Context, userID string) error
}

// ServiceAccountRepository resolves machine principals.
type ServiceAccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*domain.ServiceAccount, error)
}

// PublisherRepository resolves tenant records.
type PublisherRepository interface {
	GetByID(ctx context.Context, publisherID string) (*domain.Publisher, error)
}
