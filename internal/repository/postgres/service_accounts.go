package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

// ServiceAccountRepository implements port.ServiceAccountRepository using PostgreSQL.
type ServiceAccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewServiceAccountRepository wires a PostgreSQL-backed service account repository.
func NewServiceAccountRepository(exec pgExecutor) *ServiceAccountRepository {
	repo := &ServiceAccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetByID fetches a service account by identifier.
func (r *ServiceAccountRepository) GetByID(ctx context.Context, accountID string) (*domain.ServiceAccount, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"name",
		"publisher_id",
		"declared_scopes",
		"status",
		"created_at",
	).
		From("authz.service_accounts").
		Where(squirrel.Eq{"id": accountID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select service account sql: %w", err)
	}

	var (
		account     domain.ServiceAccount
		publisherID sql.NullString
		scopes      []string
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&account.ID,
		&account.Name,
		&publisherID,
		&scopes,
		&account.Status,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan service account: %w", err)
	}

	account.PublisherID = nullableStringPtr(publisherID)
	account.DeclaredScopes = scopes

	return &account, nil
}

var _ port.ServiceAccountRepository = (*ServiceAccountRepository)(nil)
