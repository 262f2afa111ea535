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

// PublisherRepository implements port.PublisherRepository using PostgreSQL.
type PublisherRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPublisherRepository wires a PostgreSQL-backed publisher repository.
func NewPublisherRepository(exec pgExecutor) *PublisherRepository {
	repo := &PublisherRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetByID fetches a publisher tenant record.
func (r *PublisherRepository) GetByID(ctx context.Context, publisherID string) (*domain.Publisher, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"name",
		"status",
		"created_at",
	).
		From("authz.publishers").
		Where(squirrel.Eq{"id": publisherID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select publisher sql: %w", err)
	}

	var publisher domain.Publisher

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&publisher.ID,
		&publisher.Name,
		&publisher.Status,
		&publisher.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan publisher: %w", err)
	}

	return &publisher, nil
}

var _ port.PublisherRepository = (*PublisherRepository)(nil)
