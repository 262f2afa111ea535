package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var sessionColumns = []string{
	"id",
	"user_id",
	"publisher_id",
	"ip",
	"user_agent",
	"created_at",
	"last_seen",
	"expires_at",
	"revoked_at",
	"revoke_reason",
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("authz.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.PublisherID,
			optionalString(session.IP),
			optionalString(session.UserAgent),
			session.CreatedAt.UTC(),
			session.LastSeen.UTC(),
			session.ExpiresAt.UTC(),
			optionalTime(session.RevokedAt),
			optionalString(session.RevokeReason),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByID fetches a session by its identifier.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("authz.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	return scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// Touch refreshes the session's last-seen metadata.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time, ip, userAgent *string) error {
	update := r.builder.Update("authz.sessions").
		Set("last_seen", at.UTC()).
		Where(squirrel.Eq{"id": sessionID}).
		Where("revoked_at IS NULL")

	if ip != nil {
		update = update.Set("ip", optionalString(ip))
	}
	if userAgent != nil {
		update = update.Set("user_agent", optionalString(userAgent))
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Terminate revokes a session. Returns false when the session was already
// revoked, so repeated termination stays idempotent for callers.
func (r *SessionRepository) Terminate(ctx context.Context, sessionID, reason string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("authz.sessions").
		Set("revoked_at", at.UTC()).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": sessionID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build terminate session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// CountActiveByUser counts live sessions for a user at the supplied moment.
func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Select("count(*)").
		From("authz.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		Where(squirrel.Gt{"expires_at": at.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count sessions sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}

	return count, nil
}

// ListActiveByUser returns live sessions for a user, oldest first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, at time.Time) ([]domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("authz.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		Where(squirrel.Gt{"expires_at": at.UTC()}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// TerminateOldestForUser revokes the user's longest-lived active session.
// Returns false when the user has no active session to evict.
func (r *SessionRepository) TerminateOldestForUser(ctx context.Context, userID, reason string, at time.Time) (bool, error) {
	stmt := `
		UPDATE authz.sessions
		   SET revoked_at = $3,
		       revoke_reason = $4
		 WHERE id = (
		       SELECT id FROM authz.sessions
		        WHERE user_id = $1
		          AND revoked_at IS NULL
		          AND expires_at > $2
		        ORDER BY created_at ASC
		        LIMIT 1
		 )
	`

	ct, err := r.exec.Exec(ctx, stmt, userID, at.UTC(), at.UTC(), reason)
	if err != nil {
		return false, fmt.Errorf("terminate oldest session: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session      domain.Session
		ip           sql.NullString
		userAgent    sql.NullString
		revokedAt    sql.NullTime
		revokeReason sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.PublisherID,
		&ip,
		&userAgent,
		&session.CreatedAt,
		&session.LastSeen,
		&session.ExpiresAt,
		&revokedAt,
		&revokeReason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	session.IP = nullableStringPtr(ip)
	session.UserAgent = nullableStringPtr(userAgent)
	session.RevokedAt = nullableTimePtr(revokedAt)
	session.RevokeReason = nullableStringPtr(revokeReason)

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
