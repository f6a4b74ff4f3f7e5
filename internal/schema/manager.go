package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sqlzibar/internal/storage"
)

// schemaAdvisoryLockKey serializes concurrent migration runs so two
// processes invoking Migrate in parallel both succeed and leave identical
// state, per spec §4.5/§5's idempotence requirement.
const schemaAdvisoryLockKey = 0x7371_6c7a // "sqlz" in hex, arbitrary but stable

// Manager applies the engine's schema migrations and, when configured,
// deploys the store-side accessibility function.
type Manager struct {
	db     *storage.DB
	tables storage.Tables
}

// NewManager constructs a schema manager.
func NewManager(db *storage.DB, tables storage.Tables) *Manager {
	return &Manager{db: db, tables: tables}
}

// CurrentVersion returns the store's schema version, or 0 if the version
// table does not exist yet.
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.Reader().QueryRow(ctx, fmt.Sprintf(
		`SELECT version FROM %s`, m.tables.Name("schema_version"),
	)).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
			return 0, nil
		}
		return 0, fmt.Errorf("current schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every migration with a version greater than the store's
// current version, in order, advancing the single-row version table only
// forward. An advisory lock serializes concurrent callers.
func (m *Manager) Migrate(ctx context.Context) error {
	conn, err := m.db.Writer().Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, int64(schemaAdvisoryLockKey)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, int64(schemaAdvisoryLockKey)) //nolint:errcheck

	versionTable := m.tables.Name("schema_version")
	if _, err := conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL)
	`, versionTable)); err != nil {
		return fmt.Errorf("create schema version table: %w", err)
	}

	var current int
	err = conn.QueryRow(ctx, fmt.Sprintf(`SELECT version FROM %s`, versionTable)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES (0)`, versionTable)); err != nil {
			return fmt.Errorf("initialize schema version: %w", err)
		}
		current = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, migration := range CoreMigrations() {
		if migration.Version <= current {
			continue
		}
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx, migration.UpSQL(m.tables)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET version = $1`, versionTable), migration.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("advance schema version to %d: %w", migration.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}
		current = migration.Version
	}

	return nil
}

// DeployAccessibleFunction creates or replaces the store-side
// fn_IsResourceAccessible(resourceId, principalIds, permissionId) function
// described in §9's query-composition design note. Callers gate this
// behind the initializeFunctions configuration flag.
func (m *Manager) DeployAccessibleFunction(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION fn_IsResourceAccessible(
			p_resource_id TEXT,
			p_principal_ids TEXT[],
			p_permission_id TEXT
		) RETURNS BOOLEAN AS $$
		DECLARE
			result BOOLEAN;
		BEGIN
			WITH RECURSIVE role_set AS (
				SELECT role_id FROM %[1]s WHERE permission_id = p_permission_id
			),
			anchors AS (
				SELECT DISTINCT resource_id
				FROM %[2]s g
				WHERE g.principal_id = ANY(p_principal_ids)
				  AND g.role_id IN (SELECT role_id FROM role_set)
				  AND (g.effective_from IS NULL OR g.effective_from <= now())
				  AND (g.effective_to IS NULL OR g.effective_to > now())
			),
			downward AS (
				SELECT id FROM %[3]s WHERE id IN (SELECT resource_id FROM anchors)
				UNION
				SELECT r.id FROM %[3]s r JOIN downward d ON r.parent_id = d.id
			)
			SELECT EXISTS (SELECT 1 FROM downward WHERE id = p_resource_id) INTO result;
			RETURN result;
		END;
		$$ LANGUAGE plpgsql STABLE;
	`, m.tables.Name("role_permissions"), m.tables.Name("grants"), m.tables.Name("resources"))

	if _, err := m.db.Writer().Exec(ctx, sql); err != nil {
		return fmt.Errorf("deploy accessibility function: %w", err)
	}
	return nil
}
