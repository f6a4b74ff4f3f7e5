package storage

import (
	"context"
	"fmt"
	"time"

	"sqlzibar/internal/model"
)

// GrantRepo manages grants, the sole source of authorization.
type GrantRepo struct {
	db     *DB
	tables Tables
}

// NewGrantRepo constructs a grant repository.
func NewGrantRepo(db *DB, tables Tables) *GrantRepo {
	return &GrantRepo{db: db, tables: tables}
}

// CreateGrant inserts a grant.
func (r *GrantRepo) CreateGrant(ctx context.Context, g model.Grant) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, principal_id, resource_id, role_id, effective_from, effective_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, r.tables.Name("grants")), g.ID, g.PrincipalID, g.ResourceID, g.RoleID, g.EffectiveFrom, g.EffectiveTo, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// ActiveGrantsAtResources returns every active grant, regardless of role,
// held by one of principalIDs at one of resourceIDs — used by trace
// generation to annotate a resource's ancestor chain.
func (r *GrantRepo) ActiveGrantsAtResources(ctx context.Context, resourceIDs, principalIDs []string, at time.Time) ([]model.Grant, error) {
	if len(resourceIDs) == 0 || len(principalIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		SELECT id, principal_id, resource_id, role_id, effective_from, effective_to, created_at
		FROM %s
		WHERE resource_id = ANY($1)
		  AND principal_id = ANY($2)
		  AND (effective_from IS NULL OR effective_from <= $3)
		  AND (effective_to IS NULL OR effective_to > $3)
	`, r.tables.Name("grants")), resourceIDs, principalIDs, at)
	if err != nil {
		return nil, fmt.Errorf("active grants at resources: %w", err)
	}
	defer rows.Close()

	var out []model.Grant
	for rows.Next() {
		var g model.Grant
		if err := rows.Scan(&g.ID, &g.PrincipalID, &g.ResourceID, &g.RoleID, &g.EffectiveFrom, &g.EffectiveTo, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate grants: %w", rows.Err())
	}
	return out, nil
}
