package authz

import (
	"context"
	"time"

	"sqlzibar/internal/model"
	"sqlzibar/internal/storage"
)

// storeTracer adapts the Postgres repositories to TraceDependencies.
type storeTracer struct {
	resources *storage.ResourceRepo
	grants    *storage.GrantRepo
	roles     *storage.RoleRepo
}

func (t *storeTracer) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	return t.resources.GetResource(ctx, id)
}

func (t *storeTracer) AncestorChain(ctx context.Context, resourceID string) ([]model.Resource, error) {
	return t.resources.AncestorChain(ctx, resourceID)
}

func (t *storeTracer) ActiveGrantsAtResources(ctx context.Context, resourceIDs, principalIDs []string, at time.Time) ([]model.Grant, error) {
	return t.grants.ActiveGrantsAtResources(ctx, resourceIDs, principalIDs, at)
}

func (t *storeTracer) RolesByIDs(ctx context.Context, ids []string) ([]model.Role, error) {
	return t.roles.RolesByIDs(ctx, ids)
}

func (t *storeTracer) PermissionKeysForRole(ctx context.Context, roleID string) ([]string, error) {
	return t.roles.PermissionKeysForRole(ctx, roleID)
}

// NewStoreBackedService wires a Service against the Postgres repositories,
// composing the principal resolver (§4.1) and the access resolver (§4.2).
func NewStoreBackedService(db *storage.DB, tables storage.Tables, principalResolver PrincipalResolver, accessResolver AccessResolver) *Service {
	principalRepo := storage.NewPrincipalRepo(db, tables)
	roleRepo := storage.NewRoleRepo(db, tables)
	tracer := &storeTracer{
		resources: storage.NewResourceRepo(db, tables),
		grants:    storage.NewGrantRepo(db, tables),
		roles:     roleRepo,
	}
	return NewService(principalRepo, principalResolver, roleRepo, accessResolver, tracer)
}
