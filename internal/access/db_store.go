package access

import (
	"context"
	"fmt"
	"time"

	"sqlzibar/internal/storage"
)

// dbStore is the Postgres-backed Store, computing the downward closure as
// a single recursive query so the decision is consistent with a single
// snapshot and composable into a caller's own query.
type dbStore struct {
	db     *storage.DB
	tables storage.Tables
	roles  *storage.RoleRepo
}

// NewDBStore constructs the Postgres-backed Store for the resolver.
func NewDBStore(db *storage.DB, tables storage.Tables) Store {
	return &dbStore{db: db, tables: tables, roles: storage.NewRoleRepo(db, tables)}
}

func (s *dbStore) RoleIDsForPermission(ctx context.Context, permissionID string) ([]string, error) {
	return s.roles.RoleIDsForPermission(ctx, permissionID)
}

func (s *dbStore) AccessibleResourceIDs(ctx context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) ([]string, error) {
	if len(principalIDs) == 0 || len(roleIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE anchors AS (
			SELECT DISTINCT resource_id
			FROM %[1]s
			WHERE principal_id = ANY($1)
			  AND role_id = ANY($2)
			  AND (effective_from IS NULL OR effective_from <= $3)
			  AND (effective_to IS NULL OR effective_to > $3)
		),
		downward AS (
			SELECT id FROM %[2]s WHERE id IN (SELECT resource_id FROM anchors)
			UNION
			SELECT r.id FROM %[2]s r JOIN downward d ON r.parent_id = d.id
		)
		SELECT d.id
		FROM downward d
		JOIN %[2]s r ON r.id = d.id
		WHERE ($4::text IS NULL OR r.resource_type_id = $4)
	`, s.tables.Name("grants"), s.tables.Name("resources"))

	rows, err := s.db.Reader().Query(ctx, query, principalIDs, roleIDs, at, resourceTypeID)
	if err != nil {
		return nil, fmt.Errorf("accessible resource ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan accessible resource id: %w", err)
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate accessible resource ids: %w", rows.Err())
	}
	return out, nil
}

func (s *dbStore) ComposableAccessibleQuery(_ context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) (ComposableQuery, error) {
	cte := fmt.Sprintf(`anchors AS (
			SELECT DISTINCT resource_id
			FROM %[1]s
			WHERE principal_id = ANY($1)
			  AND role_id = ANY($2)
			  AND (effective_from IS NULL OR effective_from <= $3)
			  AND (effective_to IS NULL OR effective_to > $3)
		),
		downward AS (
			SELECT id FROM %[2]s WHERE id IN (SELECT resource_id FROM anchors)
			UNION
			SELECT r.id FROM %[2]s r JOIN downward d ON r.parent_id = d.id
		),
		accessible_resources AS (
			SELECT d.id AS resource_id
			FROM downward d
			JOIN %[2]s r ON r.id = d.id
			WHERE ($4::text IS NULL OR r.resource_type_id = $4)
		)`, s.tables.Name("grants"), s.tables.Name("resources"))

	return ComposableQuery{
		CTE:  cte,
		Args: []any{principalIDs, roleIDs, at, resourceTypeID},
	}, nil
}
