// Package authz implements the auth service — spec §4.3. It composes the
// principal resolver and the resource-access resolver into the three
// operations callers actually need: a targeted check, a capability probe,
// and a diagnostic trace.
package authz

import (
	"context"
	"time"

	"sqlzibar/internal/access"
	"sqlzibar/internal/engineerr"
	"sqlzibar/internal/model"
	"sqlzibar/internal/principals"
)

// PrincipalResolver is the subset of principals.Resolver the service depends on.
type PrincipalResolver interface {
	ResolvePrincipalIds(ctx context.Context, principalID string) ([]string, error)
}

// AccessResolver is the subset of access.Resolver the service depends on.
type AccessResolver interface {
	ResolveAccessibleResources(ctx context.Context, principalIDs []string, permission model.Permission, targetResourceID *string, at time.Time) ([]string, error)
	HasAnyAccessibleResource(ctx context.Context, principalIDs []string, permission model.Permission, at time.Time) (bool, error)
}

// PermissionLookup resolves a permission's stable key to its row. It returns
// nil with no error when the key was never registered; the service turns
// that into UNKNOWN_PERMISSION.
type PermissionLookup interface {
	GetPermissionByKey(ctx context.Context, key string) (*model.Permission, error)
}

// PrincipalLookup resolves a principal id to its row, for the existence
// check CheckAccess requires before evaluating a decision.
type PrincipalLookup interface {
	GetPrincipal(ctx context.Context, id string) (*model.Principal, error)
}

var _ PrincipalResolver = (*principals.Resolver)(nil)
var _ AccessResolver = (*access.Resolver)(nil)

// Service implements the auth service (spec §4.3).
type Service struct {
	principalExistence PrincipalLookup
	principalResolver  PrincipalResolver
	permissions        PermissionLookup
	accessResolver     AccessResolver
	tracer             TraceDependencies
	now                func() time.Time
}

// NewService wires an auth service from its dependencies.
func NewService(principalExistence PrincipalLookup, principalResolver PrincipalResolver, permissions PermissionLookup, accessResolver AccessResolver, tracer TraceDependencies) *Service {
	return &Service{
		principalExistence: principalExistence,
		principalResolver:  principalResolver,
		permissions:        permissions,
		accessResolver:     accessResolver,
		tracer:             tracer,
		now:                time.Now,
	}
}

// CheckAccess resolves principalID's effective principal set, resolves
// permissionKey, and reports whether resourceId is in the accessible set.
// It fails with UNKNOWN_PERMISSION if the key is unregistered, and with
// UNKNOWN_PRINCIPAL if the principal does not exist. An unknown resourceId
// is never an error: it simply cannot appear in the accessible set.
func (s *Service) CheckAccess(ctx context.Context, principalID, permissionKey, resourceID string) (bool, error) {
	principal, permission, err := s.loadPrincipalAndPermission(ctx, principalID, permissionKey)
	if err != nil {
		return false, err
	}

	principalIDs, err := s.principalResolver.ResolvePrincipalIds(ctx, principal.ID)
	if err != nil {
		return false, engineerr.FromStoreError("check access: resolve principal ids", err)
	}

	ids, err := s.accessResolver.ResolveAccessibleResources(ctx, principalIDs, *permission, &resourceID, s.now())
	if err != nil {
		return false, engineerr.FromStoreError("check access: resolve accessible resources", err)
	}
	return len(ids) > 0, nil
}

// HasCapability resolves principalID's effective principal set and reports
// whether any resource anywhere in the hierarchy grants permissionKey.
func (s *Service) HasCapability(ctx context.Context, principalID, permissionKey string) (bool, error) {
	principal, permission, err := s.loadPrincipalAndPermission(ctx, principalID, permissionKey)
	if err != nil {
		return false, err
	}

	principalIDs, err := s.principalResolver.ResolvePrincipalIds(ctx, principal.ID)
	if err != nil {
		return false, engineerr.FromStoreError("has capability: resolve principal ids", err)
	}

	ok, err := s.accessResolver.HasAnyAccessibleResource(ctx, principalIDs, *permission, s.now())
	if err != nil {
		return false, engineerr.FromStoreError("has capability: resolve accessible resources", err)
	}
	return ok, nil
}

func (s *Service) loadPrincipalAndPermission(ctx context.Context, principalID, permissionKey string) (*model.Principal, *model.Permission, error) {
	principal, err := s.principalExistence.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, nil, engineerr.FromStoreError("load principal", err)
	}
	if principal == nil {
		return nil, nil, engineerr.New(engineerr.UnknownPrincipal, "principal "+principalID+" does not exist")
	}

	permission, err := s.permissions.GetPermissionByKey(ctx, permissionKey)
	if err != nil {
		return nil, nil, engineerr.FromStoreError("load permission", err)
	}
	if permission == nil {
		return nil, nil, engineerr.New(engineerr.UnknownPermission, "permission "+permissionKey+" is not registered")
	}
	return principal, permission, nil
}
