package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
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

// TokenRepository implements port.TokenRepository using PostgreSQL. Rotate
// and Revoke are conditional single-statement updates: the WHERE clause
// guards the current status, so a concurrent verify reads either the old
// committed row or the new one.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var tokenColumns = []string{
	"id",
	"kind",
	"name",
	"secret_hash",
	"prev_secret_hash",
	"rotation_grace_end",
	"user_id",
	"service_account_id",
	"publisher_id",
	"scopes",
	"allowed_ips",
	"rate_limit_max",
	"rate_limit_window_seconds",
	"status",
	"version",
	"created_at",
	"expires_at",
	"last_used_at",
	"revoked_at",
}

// Create inserts a new token record. Scopes keep nil distinct from empty: a
// token issued without scopes stores NULL and inherits its owner's grant,
// while an empty list pins it to an empty grant.
func (r *TokenRepository) Create(ctx context.Context, record domain.TokenRecord) error {
	scopes, err := marshalOptionalList(record.Scopes)
	if err != nil {
		return fmt.Errorf("prepare token scopes: %w", err)
	}
	allowedIPs, err := marshalStringList(record.AllowedIPs)
	if err != nil {
		return fmt.Errorf("prepare token allow-list: %w", err)
	}

	var rateLimitMax, rateLimitWindow any
	if record.RateLimit != nil {
		rateLimitMax = record.RateLimit.MaxPerWindow
		rateLimitWindow = int64(record.RateLimit.Window / time.Second)
	}

	stmt, args, err := r.builder.Insert("authz.tokens").
		Columns(tokenColumns...).
		Values(
			record.ID,
			string(record.Kind),
			record.Name,
			record.SecretHash,
			optionalString(record.PrevSecretHash),
			optionalTime(record.RotationGraceEnd),
			optionalString(record.UserID),
			optionalString(record.ServiceAccountID),
			optionalString(record.PublisherID),
			scopes,
			allowedIPs,
			rateLimitMax,
			rateLimitWindow,
			string(record.Status),
			record.Version,
			record.CreatedAt.UTC(),
			optionalTime(record.ExpiresAt),
			optionalTime(record.LastUsedAt),
			optionalTime(record.RevokedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	return nil
}

// GetByID retrieves a token record by its identifier.
func (r *TokenRepository) GetByID(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	stmt, args, err := r.builder.Select(tokenColumns...).
		From("authz.tokens").
		Where(squirrel.Eq{"id": tokenID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	record, err := scanToken(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	return record, nil
}

// ListByUser returns every PAT owned by the user, newest first.
func (r *TokenRepository) ListByUser(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	stmt, args, err := r.builder.Select(tokenColumns...).
		From("authz.tokens").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var records []domain.TokenRecord
	for rows.Next() {
		record, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}

	return records, nil
}

// Rotate installs a fresh secret hash, keeps the old one until graceEnd, and
// bumps the record version. Only active or already-rotating records rotate;
// the return value reports whether a row actually changed.
func (r *TokenRepository) Rotate(ctx context.Context, tokenID, newSecretHash string, graceEnd time.Time, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("authz.tokens").
		Set("prev_secret_hash", squirrel.Expr("secret_hash")).
		Set("secret_hash", newSecretHash).
		Set("rotation_grace_end", graceEnd.UTC()).
		Set("status", string(domain.TokenStatusRotating)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": tokenID}).
		Where(squirrel.Eq{"status": []string{
			string(domain.TokenStatusActive),
			string(domain.TokenStatusRotating),
		}}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build rotate token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("rotate token: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// Revoke flips the record to revoked. Revocation is terminal and idempotent
// at the caller: a second revoke reports false, never an error.
func (r *TokenRepository) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("authz.tokens").
		Set("status", string(domain.TokenStatusRevoked)).
		Set("revoked_at", at.UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": tokenID}).
		Where(squirrel.NotEq{"status": string(domain.TokenStatusRevoked)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// RecordUsage stamps the token's last verified use. Best effort: a missing
// row is not an error because the token may have been deleted concurrently.
func (r *TokenRepository) RecordUsage(ctx context.Context, tokenID string, at time.Time, outcome string) error {
	stmt, args, err := r.builder.Update("authz.tokens").
		Set("last_used_at", at.UTC()).
		Where(squirrel.Eq{"id": tokenID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record token usage sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("record token usage: %w", err)
	}

	return nil
}

func marshalOptionalList(values []string) (any, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func scanToken(row pgx.Row) (*domain.TokenRecord, error) {
	var (
		record          domain.TokenRecord
		prevSecretHash  sql.NullString
		graceEnd        sql.NullTime
		userID          sql.NullString
		serviceAccount  sql.NullString
		publisherID     sql.NullString
		scopes          []byte
		allowedIPs      []byte
		rateLimitMax    sql.NullInt64
		rateLimitWindow sql.NullInt64
		expiresAt       sql.NullTime
		lastUsedAt      sql.NullTime
		revokedAt       sql.NullTime
	)

	if err := row.Scan(
		&record.ID,
		&record.Kind,
		&record.Name,
		&record.SecretHash,
		&prevSecretHash,
		&graceEnd,
		&userID,
		&serviceAccount,
		&publisherID,
		&scopes,
		&allowedIPs,
		&rateLimitMax,
		&rateLimitWindow,
		&record.Status,
		&record.Version,
		&record.CreatedAt,
		&expiresAt,
		&lastUsedAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	record.PrevSecretHash = nullableStringPtr(prevSecretHash)
	record.RotationGraceEnd = nullableTimePtr(graceEnd)
	record.UserID = nullableStringPtr(userID)
	record.ServiceAccountID = nullableStringPtr(serviceAccount)
	record.PublisherID = nullableStringPtr(publisherID)
	record.ExpiresAt = nullableTimePtr(expiresAt)
	record.LastUsedAt = nullableTimePtr(lastUsedAt)
	record.RevokedAt = nullableTimePtr(revokedAt)

	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &record.Scopes); err != nil {
			return nil, fmt.Errorf("unmarshal token scopes: %w", err)
		}
	}
	if len(allowedIPs) > 0 {
		if err := json.Unmarshal(allowedIPs, &record.AllowedIPs); err != nil {
			return nil, fmt.Errorf("unmarshal token allow-list: %w", err)
		}
	}
	if rateLimitMax.Valid && rateLimitWindow.Valid {
		record.RateLimit = &domain.RateLimitPolicy{
			MaxPerWindow: int(rateLimitMax.Int64),
			Window:       time.Duration(rateLimitWindow.Int64) * time.Second,
		}
	}

	return &record, nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
