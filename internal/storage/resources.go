package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sqlzibar/internal/model"
)

// ResourceRepo manages resource types and the resource hierarchy.
type ResourceRepo struct {
	db     *DB
	tables Tables
}

// NewResourceRepo constructs a resource repository.
func NewResourceRepo(db *DB, tables Tables) *ResourceRepo {
	return &ResourceRepo{db: db, tables: tables}
}

// UpsertResourceType inserts a resource type keyed by its id, or updates its
// name if that id already exists.
func (r *ResourceRepo) UpsertResourceType(ctx context.Context, rt model.ResourceType) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, r.tables.Name("resource_types")), rt.ID, rt.Name)
	if err != nil {
		return fmt.Errorf("upsert resource type: %w", err)
	}
	return nil
}

// CreateResource inserts a resource, or is a no-op if one with this id
// already exists — the seeder relies on this to create the root idempotently.
func (r *ResourceRepo) CreateResource(ctx context.Context, res model.Resource) error {
	_, err := r.db.Writer().Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, parent_id, name, resource_type_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, r.tables.Name("resources")), res.ID, res.ParentID, res.Name, res.ResourceTypeID, res.IsActive, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// GetResource returns a resource by id, or nil if it does not exist.
func (r *ResourceRepo) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	row := r.db.Reader().QueryRow(ctx, fmt.Sprintf(`
		SELECT id, parent_id, name, resource_type_id, is_active, created_at
		FROM %s WHERE id = $1
	`, r.tables.Name("resources")), id)

	var res model.Resource
	if err := row.Scan(&res.ID, &res.ParentID, &res.Name, &res.ResourceTypeID, &res.IsActive, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &res, nil
}

// AncestorChain returns the resource's ancestor chain, starting at the
// resource itself and walking up to the root via parent_id, ordered from
// the target outward (depth 0 is the resource itself).
func (r *ResourceRepo) AncestorChain(ctx context.Context, resourceID string) ([]model.Resource, error) {
	rows, err := r.db.Reader().Query(ctx, fmt.Sprintf(`
		WITH RECURSIVE chain AS (
			SELECT id, parent_id, name, resource_type_id, is_active, created_at, 0 AS depth
			FROM %[1]s
			WHERE id = $1

			UNION ALL

			SELECT res.id, res.parent_id, res.name, res.resource_type_id, res.is_active, res.created_at, c.depth + 1
			FROM %[1]s res
			JOIN chain c ON res.id = c.parent_id
		)
		SELECT id, parent_id, name, resource_type_id, is_active, created_at FROM chain ORDER BY depth ASC
	`, r.tables.Name("resources")), resourceID)
	if err != nil {
		return nil, fmt.Errorf("ancestor chain: %w", err)
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.ID, &res.ParentID, &res.Name, &res.ResourceTypeID, &res.IsActive, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ancestor: %w", err)
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ancestors: %w", rows.Err())
	}
	return out, nil
}
