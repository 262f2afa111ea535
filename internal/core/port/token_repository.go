package port

import (
	"context"
	"time"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
)

// TokenRepository persists service token and PAT records. Rotate and Revoke
// are conditional updates on the record's current status so they are
// linearizable with respect to concurrent lookups: a competing reader sees
// either the prior state or the committed new state, never a torn one.
type TokenRepository interface {
	Create(ctx context.Context, record domain.TokenRecord) error
	GetByID(ctx context.Context, tokenID string) (*domain.TokenRecord, error)
	ListByUser(ctx context.Context, userID string) ([]domain.TokenRecord, error)
	// Rotate swaps in the new secret hash, retains the old one until
	// graceEnd, and bumps the record version. Returns false when the record
	// was not in a rotatable state.
	Rotate(ctx context.Context, tokenID, newSecretHash string, graceEnd time.Time, at time.Time) (bool, error)
	// Revoke flips the record to revoked. Returns false when the record was
	// already revoked.
	Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error)
	RecordUsage(ctx context.Context, tokenID string, at time.Time, outcome string) error
}

// SessionRepository deals with server-side session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time, ip, userAgent *string) error
	Terminate(ctx context.Context, sessionID, reason string, at time.Time) (bool, error)
	CountActiveByUser(ctx context.Context, userID string, at time.Time) (int, error)
	ListActiveByUser(ctx context.Context, userID string, at time.Time) ([]domain.Session, error)
	TerminateOldestForUser(ctx context.Context, userID, reason string, at time.Time) (bool, error)
}
