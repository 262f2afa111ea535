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

// MembershipRepository implements port.MembershipRepository using PostgreSQL.
// Every mutation bumps the version column inside the same statement so
// concurrent resolvers can never observe new grants under the old version.
type MembershipRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewMembershipRepository wires a PostgreSQL-backed membership repository.
func NewMembershipRepository(exec pgExecutor) *MembershipRepository {
	repo := &MembershipRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *MembershipRepository) WithTx(tx pgx.Tx) *MembershipRepository {
	if tx == nil {
		return r
	}
	return &MembershipRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var membershipColumns = []string{
	"id",
	"user_id",
	"publisher_id",
	"role_name",
	"status",
	"grants",
	"denials",
	"restrictions",
	"version",
	"created_at",
	"updated_at",
}

// Get fetches the membership binding a user to a publisher.
func (r *MembershipRepository) Get(ctx context.Context, userID, publisherID string) (*domain.Membership, error) {
	stmt, args, err := r.builder.Select(membershipColumns...).
		From("authz.memberships").
		Where(squirrel.Eq{"user_id": userID, "publisher_id": publisherID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select membership sql: %w", err)
	}

	membership, err := scanMembership(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	return membership, nil
}

// ListByUser returns every membership held by the user, newest first.
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	stmt, args, err := r.builder.Select(membershipColumns...).
		From("authz.memberships").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list memberships sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []domain.Membership
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, *membership)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}

	return memberships, nil
}

// UpdateGrants replaces the explicit grant and denial lists and returns the
// new membership version.
func (r *MembershipRepository) UpdateGrants(ctx context.Context, membershipID string, grants, denials []string) (int64, error) {
	grantsJSON, err := marshalStringList(grants)
	if err != nil {
		return 0, fmt.Errorf("prepare grants: %w", err)
	}
	denialsJSON, err := marshalStringList(denials)
	if err != nil {
		return 0, fmt.Errorf("prepare denials: %w", err)
	}

	stmt, args, err := r.builder.Update("authz.memberships").
		Set("grants", grantsJSON).
		Set("denials", denialsJSON).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": membershipID}).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update grants sql: %w", err)
	}

	var version int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("update membership grants: %w", err)
	}

	return version, nil
}

// UpdateRole reassigns the membership's role and returns the new version.
func (r *MembershipRepository) UpdateRole(ctx context.Context, membershipID, roleName string) (int64, error) {
	stmt, args, err := r.builder.Update("authz.memberships").
		Set("role_name", roleName).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": membershipID}).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update role sql: %w", err)
	}

	var version int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("update membership role: %w", err)
	}

	return version, nil
}

// SetStatus transitions the membership state and returns the new version.
func (r *MembershipRepository) SetStatus(ctx context.Context, membershipID string, status domain.MembershipStatus) (int64, error) {
	stmt, args, err := r.builder.Update("authz.memberships").
		Set("status", string(status)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": membershipID}).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build set membership status sql: %w", err)
	}

	var version int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("set membership status: %w", err)
	}

	return version, nil
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var (
		membership   domain.Membership
		grants       []byte
		denials      []byte
		restrictions []byte
	)

	if err := row.Scan(
		&membership.ID,
		&membership.UserID,
		&membership.PublisherID,
		&membership.RoleName,
		&membership.Status,
		&grants,
		&denials,
		&restrictions,
		&membership.Version,
		&membership.CreatedAt,
		&membership.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}

	if len(grants) > 0 {
		if err := json.Unmarshal(grants, &membership.Grants); err != nil {
			return nil, fmt.Errorf("unmarshal membership grants: %w", err)
		}
	}
	if len(denials) > 0 {
		if err := json.Unmarshal(denials, &membership.Denials); err != nil {
			return nil, fmt.Errorf("unmarshal membership denials: %w", err)
		}
	}
	if len(restrictions) > 0 {
		if err := json.Unmarshal(restrictions, &membership.Restrictions); err != nil {
			return nil, fmt.Errorf("unmarshal membership restrictions: %w", err)
		}
	}

	return &membership, nil
}

func marshalStringList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

var _ port.MembershipRepository = (*MembershipRepository)(nil)
