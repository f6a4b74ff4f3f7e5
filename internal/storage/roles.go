package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sqlzibar/internal/model"
)

// RoleRepo manages roles, permissions, and the role-to-permission join.
type RoleRepo struct {
	db     *DB
	tables Tables
}

// NewRoleRepo constructs a role repository.
func NewRoleRepo(db *DB, tables Tables) *RoleRepo {
	return &RoleRepo{db: db, tables: tables}
}

// UpsertRole inserts a role keyed by its natural Key, or updates its name.
func (r *RoleRepo) UpsertRole(ctx context.Context, role model.Role) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, key, name, is_virtual) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, is_virtual = EXCLUDED.is_virtual
	`, r.tables.Name("roles")), role.ID, role.Key, role.Name, role.IsVirtual)
	if err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

// UpsertPermission inserts a permission keyed by its natural Key.
func (r *RoleRepo) UpsertPermission(ctx context.Context, perm model.Permission) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, key, name, resource_type_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, resource_type_id = EXCLUDED.resource_type_id
	`, r.tables.Name("permissions")), perm.ID, perm.Key, perm.Name, perm.ResourceTypeID)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

// UpsertRolePermission links a role to a permission, idempotently.
func (r *RoleRepo) UpsertRolePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, r.tables.Name("role_permissions")), roleID, permissionID)
	if err != nil {
		return fmt.Errorf("upsert role permission: %w", err)
	}
	return nil
}

// GetPermissionByKey returns a permission by its stable key, or nil if
// unregistered.
func (r *RoleRepo) GetPermissionByKey(ctx context.Context, key string) (*model.Permission, error) {
	row := r.db.Reader().QueryRow(ctx, fmt.Sprintf(`
		SELECT id, key, name, resource_type_id FROM %s WHERE key = $1
	`, r.tables.Name("permissions")), key)

	var p model.Permission
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.ResourceTypeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get permission by key: %w", err)
	}
	return &p, nil
}

// GetRoleByKey returns a role by its stable key, or nil if unregistered.
func (r *RoleRepo) GetRoleByKey(ctx context.Context, key string) (*model.Role, error) {
	row := r.db.Reader().QueryRow(ctx, fmt.Sprintf(`
		SELECT id, key, name, is_virtual FROM %s WHERE key = $1
	`, r.tables.Name("roles")), key)

	var role model.Role
	if err := row.Scan(&role.ID, &role.Key, &role.Name, &role.IsVirtual); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role by key: %w", err)
	}
	return &role, nil
}

// RoleIDsForPermission returns every role id whose role-permission join
// includes the given permission id — the R_K set of spec §4.2 step 1.
func (r *RoleRepo) RoleIDsForPermission(ctx context.Context, permissionID string) ([]string, error) {
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		SELECT role_id FROM %s WHERE permission_id = $1
	`, r.tables.Name("role_permissions")), permissionID)
	if err != nil {
		return nil, fmt.Errorf("role ids for permission: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		out = append(out, roleID)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate role ids: %w", rows.Err())
	}
	return out, nil
}

// PermissionKeysForRole returns the permission keys a role carries — used
// by trace generation to report "effective permissions" at a node.
func (r *RoleRepo) PermissionKeysForRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		SELECT p.key
		FROM %s rp
		JOIN %s p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
	`, r.tables.Name("role_permissions"), r.tables.Name("permissions")), roleID)
	if err != nil {
		return nil, fmt.Errorf("permission keys for role: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan permission key: %w", err)
		}
		out = append(out, key)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate permission keys: %w", rows.Err())
	}
	return out, nil
}

// RolesByIDs returns the roles matching the given ids.
func (r *RoleRepo) RolesByIDs(ctx context.Context, ids []string) ([]model.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		SELECT id, key, name, is_virtual FROM %s WHERE id = ANY($1)
	`, r.tables.Name("roles")), ids)
	if err != nil {
		return nil, fmt.Errorf("roles by ids: %w", err)
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Key, &role.Name, &role.IsVirtual); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, role)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate roles: %w", rows.Err())
	}
	return out, nil
}
