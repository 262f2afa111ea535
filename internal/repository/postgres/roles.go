package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
)

// RoleRepository serves the read-only role catalog from PostgreSQL.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	repo := &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

var roleColumns = []string{
	"id",
	"name",
	"publisher_id",
	"parent_name",
	"permissions",
	"description",
	"created_at",
}

// ListSystem returns the system role templates shared by every tenant.
func (r *RoleRepository) ListSystem(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("authz.roles").
		Where("publisher_id IS NULL").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list system roles sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args...)
}

// ListByPublisher returns the roles defined by one tenant.
func (r *RoleRepository) ListByPublisher(ctx context.Context, publisherID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("authz.roles").
		Where(squirrel.Eq{"publisher_id": publisherID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list publisher roles sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args...)
}

// ListPermissions returns the whole permission catalog, deprecated entries
// included.
func (r *RoleRepository) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"resource",
		"action",
		"description",
		"deprecated",
	).
		From("authz.permissions").
		OrderBy("resource ASC", "action ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []domain.Permission
	for rows.Next() {
		var (
			permission  domain.Permission
			description sql.NullString
		)
		if err := rows.Scan(
			&permission.ID,
			&permission.Resource,
			&permission.Action,
			&description,
			&permission.Deprecated,
		); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permission.Description = nullableStringPtr(description)
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args ...any) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var (
			role        domain.Role
			publisherID sql.NullString
			parentName  sql.NullString
			permissions []byte
			description sql.NullString
		)
		if err := rows.Scan(
			&role.ID,
			&role.Name,
			&publisherID,
			&parentName,
			&permissions,
			&description,
			&role.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}

		role.PublisherID = nullableStringPtr(publisherID)
		role.ParentName = nullableStringPtr(parentName)
		role.Description = nullableStringPtr(description)
		if len(permissions) > 0 {
			if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
				return nil, fmt.Errorf("unmarshal role permissions: %w", err)
			}
		}

		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
