package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sqlzibar/internal/model"
)

// PrincipalRepo manages principals, their type-specific extension rows, and
// group membership.
type PrincipalRepo struct {
	db     *DB
	tables Tables
}

// NewPrincipalRepo constructs a principal repository.
func NewPrincipalRepo(db *DB, tables Tables) *PrincipalRepo {
	return &PrincipalRepo{db: db, tables: tables}
}

// UpsertPrincipalType inserts a principal type keyed by its natural id, or
// updates its name if that id already exists.
func (r *PrincipalRepo) UpsertPrincipalType(ctx context.Context, pt model.PrincipalType) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, r.tables.Name("principal_types")), pt.ID, pt.Name)
	if err != nil {
		return fmt.Errorf("upsert principal type: %w", err)
	}
	return nil
}

// GetPrincipal returns a principal by id, or nil if it does not exist.
func (r *PrincipalRepo) GetPrincipal(ctx context.Context, id string) (*model.Principal, error) {
	row := r.db.Reader().QueryRow(ctx, fmt.Sprintf(`
		SELECT id, principal_type_id, display_name, COALESCE(organization_id, ''), COALESCE(external_ref, ''), created_at
		FROM %s WHERE id = $1
	`, r.tables.Name("principals")), id)

	var p model.Principal
	if err := row.Scan(&p.ID, &p.PrincipalTypeID, &p.DisplayName, &p.OrganizationID, &p.ExternalRef, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return &p, nil
}

// CreatePrincipal inserts a new principal.
func (r *PrincipalRepo) CreatePrincipal(ctx context.Context, p model.Principal) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, principal_type_id, display_name, organization_id, external_ref, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		ON CONFLICT (id) DO NOTHING
	`, r.tables.Name("principals")), p.ID, p.PrincipalTypeID, p.DisplayName, p.OrganizationID, p.ExternalRef, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("principal type %q does not exist", p.PrincipalTypeID)
		}
		return fmt.Errorf("create principal: %w", err)
	}
	return nil
}

// CreateUserGroup inserts a group's Principal row plus its UserGroup
// extension in a single transaction.
func (r *PrincipalRepo) CreateUserGroup(ctx context.Context, g model.UserGroup, principal model.Principal) error {
	tx, err := r.db.Writer().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, principal_type_id, display_name, organization_id, external_ref, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
	`, r.tables.Name("principals")), principal.ID, principal.PrincipalTypeID, principal.DisplayName,
		principal.OrganizationID, principal.ExternalRef, principal.CreatedAt); err != nil {
		return fmt.Errorf("create group principal: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, principal_id, name, created_at) VALUES ($1, $2, $3, $4)
	`, r.tables.Name("user_groups")), g.ID, g.PrincipalID, g.Name, g.CreatedAt); err != nil {
		return fmt.Errorf("create user group: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AddToGroup records a membership. Callers must have already rejected
// group-typed members (see principals.Resolver.AddToGroup); this method
// is idempotent on the (principal, group) pair.
func (r *PrincipalRepo) AddToGroup(ctx context.Context, principalID, groupID string) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (principal_id, user_group_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal_id, user_group_id) DO NOTHING
	`, r.tables.Name("user_group_memberships")), principalID, groupID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add to group: %w", err)
	}
	return nil
}

// RemoveFromGroup deletes a membership if present; a no-op otherwise.
func (r *PrincipalRepo) RemoveFromGroup(ctx context.Context, principalID, groupID string) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE principal_id = $1 AND user_group_id = $2
	`, r.tables.Name("user_group_memberships")), principalID, groupID)
	if err != nil {
		return fmt.Errorf("remove from group: %w", err)
	}
	return nil
}

// GroupsForPrincipal returns the group principal ids that directly contain
// principalID. Single-level: the membership table never stores nested
// groups, so this is a plain join, not a recursive query.
func (r *PrincipalRepo) GroupsForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		SELECT ug.principal_id
		FROM %s m
		JOIN %s ug ON ug.id = m.user_group_id
		WHERE m.principal_id = $1
	`, r.tables.Name("user_group_memberships"), r.tables.Name("user_groups")), principalID)
	if err != nil {
		return nil, fmt.Errorf("groups for principal: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var groupPrincipalID string
		if err := rows.Scan(&groupPrincipalID); err != nil {
			return nil, fmt.Errorf("scan group membership: %w", err)
		}
		out = append(out, groupPrincipalID)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate group memberships: %w", rows.Err())
	}
	return out, nil
}

// UserGroupsByPrincipalIDs returns the UserGroup rows whose principal_id is
// in groupPrincipalIDs, preserving no particular order.
func (r *PrincipalRepo) UserGroupsByPrincipalIDs(ctx context.Context, groupPrincipalIDs []string) ([]model.UserGroup, error) {
	if len(groupPrincipalIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		SELECT id, principal_id, name, created_at FROM %s WHERE principal_id = ANY($1)
	`, r.tables.Name("user_groups")), groupPrincipalIDs)
	if err != nil {
		return nil, fmt.Errorf("user groups by principal ids: %w", err)
	}
	defer rows.Close()

	var out []model.UserGroup
	for rows.Next() {
		var g model.UserGroup
		if err := rows.Scan(&g.ID, &g.PrincipalID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		out = append(out, g)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate user groups: %w", rows.Err())
	}
	return out, nil
}
