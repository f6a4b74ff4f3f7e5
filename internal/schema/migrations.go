// Package schema manages the engine's persisted schema: a linear sequence
// of forward-only, idempotent migrations tracked by a single-row version
// table, plus the optional store-side accessibility function described in
// §9's query-composition design note.
package schema

import (
	"fmt"

	"sqlzibar/internal/storage"
)

// Migration is one versioned, idempotent schema step.
type Migration struct {
	Version     int
	Description string
	UpSQL       func(t storage.Tables) string
}

// CoreMigrations returns every migration in order. All table creation is
// guarded with IF NOT EXISTS so re-applying a migration against an
// already-migrated store is a no-op.
func CoreMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "core principal, resource, role, and grant tables",
			UpSQL:       coreTables,
		},
	}
}

func coreTables(t storage.Tables) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS %[2]s (
			id TEXT PRIMARY KEY,
			principal_type_id TEXT NOT NULL REFERENCES %[1]s(id),
			display_name TEXT NOT NULL,
			organization_id TEXT,
			external_ref TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS %[3]s (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL UNIQUE REFERENCES %[2]s(id),
			email TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS %[4]s (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL UNIQUE REFERENCES %[2]s(id),
			owner_principal_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS %[5]s (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL UNIQUE REFERENCES %[2]s(id),
			organization_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS %[6]s (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL UNIQUE REFERENCES %[2]s(id),
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS %[7]s (
			principal_id TEXT NOT NULL REFERENCES %[2]s(id),
			user_group_id TEXT NOT NULL REFERENCES %[6]s(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (principal_id, user_group_id)
		);

		CREATE TABLE IF NOT EXISTS %[8]s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS %[9]s (
			id TEXT PRIMARY KEY,
			parent_id TEXT REFERENCES %[9]s(id),
			name TEXT NOT NULL,
			resource_type_id TEXT NOT NULL REFERENCES %[8]s(id),
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_%[9]s_parent_id ON %[9]s (parent_id);

		CREATE TABLE IF NOT EXISTS %[10]s (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			is_virtual BOOLEAN NOT NULL DEFAULT false
		);

		CREATE TABLE IF NOT EXISTS %[11]s (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			resource_type_id TEXT REFERENCES %[8]s(id)
		);

		CREATE TABLE IF NOT EXISTS %[12]s (
			role_id TEXT NOT NULL REFERENCES %[10]s(id),
			permission_id TEXT NOT NULL REFERENCES %[11]s(id),
			PRIMARY KEY (role_id, permission_id)
		);

		CREATE TABLE IF NOT EXISTS %[13]s (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL REFERENCES %[2]s(id),
			resource_id TEXT NOT NULL REFERENCES %[9]s(id),
			role_id TEXT NOT NULL REFERENCES %[10]s(id),
			effective_from TIMESTAMPTZ,
			effective_to TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_%[13]s_principal_role ON %[13]s (principal_id, role_id);
		CREATE INDEX IF NOT EXISTS idx_%[13]s_resource ON %[13]s (resource_id);
	`,
		t.Name("principal_types"), t.Name("principals"), t.Name("users"), t.Name("agents"),
		t.Name("service_accounts"), t.Name("user_groups"), t.Name("user_group_memberships"),
		t.Name("resource_types"), t.Name("resources"), t.Name("roles"), t.Name("permissions"),
		t.Name("role_permissions"), t.Name("grants"),
	)
}
