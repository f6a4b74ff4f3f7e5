// Package seed implements the core seeder (§4.5): idempotent upserts that
// bring a freshly-migrated store to a usable baseline — principal types,
// a root resource type, the system-admin role and permission, the root
// resource itself, and a system-admin principal granted that role at the
// root so the engine is never deployed in a state nobody can administer.
package seed

import (
	"context"
	"fmt"
	"time"

	"sqlzibar/internal/model"
	"sqlzibar/internal/storage"
)

// Well-known seeded identifiers. Stable across runs so re-seeding (or
// seeding two processes concurrently) is idempotent.
const (
	RootResourceTypeID  = "root"
	SystemAdminRoleID    = "system_admin"
	SystemAdminRoleKey   = "system_admin"
	SystemAdminPermID    = "manage"
	SystemAdminPermKey   = "MANAGE"
	SystemAdminPrincipal = "system-admin"
	SystemAdminGrantID   = "system-admin-root-grant"
)

// Config parameterizes the seeder's root resource identity — the same
// values the engine's configuration carries (rootResourceId/Name).
type Config struct {
	RootResourceID   string
	RootResourceName string
}

// CoreSeeder applies the core seed data.
type CoreSeeder struct {
	principals *storage.PrincipalRepo
	resources  *storage.ResourceRepo
	roles      *storage.RoleRepo
	grants     *storage.GrantRepo
	now        func() time.Time
}

// NewCoreSeeder constructs a core seeder.
func NewCoreSeeder(db *storage.DB, tables storage.Tables) *CoreSeeder {
	return &CoreSeeder{
		principals: storage.NewPrincipalRepo(db, tables),
		resources:  storage.NewResourceRepo(db, tables),
		roles:      storage.NewRoleRepo(db, tables),
		grants:     storage.NewGrantRepo(db, tables),
		now:        time.Now,
	}
}

// Run applies every seed upsert. It is safe to call repeatedly and safe to
// call from two processes concurrently: every write is a natural-key upsert
// or an ON CONFLICT DO NOTHING insert.
func (s *CoreSeeder) Run(ctx context.Context, cfg Config) error {
	now := s.now().UTC()

	for _, pt := range []model.PrincipalType{
		{ID: model.PrincipalTypeUser, Name: "User"},
		{ID: model.PrincipalTypeServiceAccount, Name: "Service Account"},
		{ID: model.PrincipalTypeGroup, Name: "Group"},
		{ID: model.PrincipalTypeAgent, Name: "Agent"},
	} {
		if err := s.principals.UpsertPrincipalType(ctx, pt); err != nil {
			return fmt.Errorf("seed principal type %s: %w", pt.ID, err)
		}
	}

	if err := s.resources.UpsertResourceType(ctx, model.ResourceType{ID: RootResourceTypeID, Name: "Root"}); err != nil {
		return fmt.Errorf("seed root resource type: %w", err)
	}

	if err := s.roles.UpsertRole(ctx, model.Role{ID: SystemAdminRoleID, Key: SystemAdminRoleKey, Name: "System Administrator", IsVirtual: false}); err != nil {
		return fmt.Errorf("seed system-admin role: %w", err)
	}
	if err := s.roles.UpsertPermission(ctx, model.Permission{ID: SystemAdminPermID, Key: SystemAdminPermKey, Name: "Manage everything"}); err != nil {
		return fmt.Errorf("seed manage permission: %w", err)
	}
	if err := s.roles.UpsertRolePermission(ctx, SystemAdminRoleID, SystemAdminPermID); err != nil {
		return fmt.Errorf("link system-admin role to manage permission: %w", err)
	}

	rootID, rootName := resolveRootIdentity(cfg)
	if err := s.resources.CreateResource(ctx, model.Resource{
		ID:             rootID,
		ParentID:       nil,
		Name:           rootName,
		ResourceTypeID: RootResourceTypeID,
		IsActive:       true,
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("seed root resource: %w", err)
	}

	if err := s.principals.CreatePrincipal(ctx, model.Principal{
		ID:              SystemAdminPrincipal,
		PrincipalTypeID: model.PrincipalTypeServiceAccount,
		DisplayName:     "System Administrator",
		CreatedAt:       now,
	}); err != nil {
		return fmt.Errorf("seed system-admin principal: %w", err)
	}

	if err := s.grants.CreateGrant(ctx, model.Grant{
		ID:          SystemAdminGrantID,
		PrincipalID: SystemAdminPrincipal,
		ResourceID:  rootID,
		RoleID:      SystemAdminRoleID,
		CreatedAt:   now,
	}); err != nil {
		return fmt.Errorf("seed system-admin grant: %w", err)
	}

	return nil
}

// resolveRootIdentity applies the default root resource id/name when the
// caller's configuration leaves them blank.
func resolveRootIdentity(cfg Config) (id, name string) {
	id = cfg.RootResourceID
	if id == "" {
		id = "root"
	}
	name = cfg.RootResourceName
	if name == "" {
		name = "Root"
	}
	return id, name
}
