// Package access implements the resource-access resolver — spec §4.2, the
// heart of the engine. Given a resolved principal set, a permission, and an
// optional target resource, it computes the set of resource ids reachable
// via cascading grants: the anchor set of directly-granted resources,
// extended downward through every descendant in the resource hierarchy.
package access

import (
	"context"
	"fmt"
	"time"

	"sqlzibar/internal/model"
)

// ComposableQuery is the query-composable form of an accessible-resource
// set: a `WITH RECURSIVE` common table expression plus its positional
// arguments. Callers embed CTE verbatim after their own `WITH RECURSIVE`
// keyword (or append it to an existing WITH clause with a comma) and join
// their business table against the `accessible_resources(resource_id)`
// relation it defines, rather than materializing the set in memory.
type ComposableQuery struct {
	CTE  string
	Args []any
}

// Store is the persistence dependency of the resolver. The production
// implementation (see db_store.go) executes the downward closure as a
// single recursive query; a fake implementation lets resolver logic be
// tested without a database.
type Store interface {
	// RoleIDsForPermission returns every role id whose permissions include
	// permissionID — the R_K set of spec §4.2 step 1.
	RoleIDsForPermission(ctx context.Context, permissionID string) ([]string, error)
	// AccessibleResourceIDs computes the full downward closure D for the
	// given principal/role sets, active at `at`, restricted to
	// resourceTypeID when non-nil.
	AccessibleResourceIDs(ctx context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) ([]string, error)
	// ComposableAccessibleQuery returns the same set as a composable CTE.
	ComposableAccessibleQuery(ctx context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) (ComposableQuery, error)
}

// Resolver implements the resource-access resolver.
type Resolver struct {
	store Store
}

// New constructs a resource-access resolver.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveAccessibleResources computes D (or, if targetResourceID is
// non-nil, {targetResourceID} ∩ D) for the given resolved principal ids and
// permission, at the snapshot instant `at`. This is the materializing form;
// AccessibleResourcesQuery is the query-composable form used by the
// specification executor.
func (r *Resolver) ResolveAccessibleResources(ctx context.Context, principalIDs []string, permission model.Permission, targetResourceID *string, at time.Time) ([]string, error) {
	roleIDs, err := r.store.RoleIDsForPermission(ctx, permission.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve accessible resources: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	ids, err := r.store.AccessibleResourceIDs(ctx, principalIDs, roleIDs, at, permission.ResourceTypeID)
	if err != nil {
		return nil, fmt.Errorf("resolve accessible resources: %w", err)
	}

	if targetResourceID == nil {
		return ids, nil
	}
	for _, id := range ids {
		if id == *targetResourceID {
			return []string{*targetResourceID}, nil
		}
	}
	return nil, nil
}

// AccessibleResourcesQuery returns the query-composable relation of
// accessible resource ids for the given principal set and permission, for
// joining directly against a business query rather than materializing the
// set in application memory.
func (r *Resolver) AccessibleResourcesQuery(ctx context.Context, principalIDs []string, permission model.Permission, at time.Time) (ComposableQuery, error) {
	roleIDs, err := r.store.RoleIDsForPermission(ctx, permission.ID)
	if err != nil {
		return ComposableQuery{}, fmt.Errorf("accessible resources query: %w", err)
	}
	return r.store.ComposableAccessibleQuery(ctx, principalIDs, roleIDs, at, permission.ResourceTypeID)
}

// HasAnyAccessibleResource reports whether D is non-empty — used by the
// auth service's capability probe, which needs no target resource.
func (r *Resolver) HasAnyAccessibleResource(ctx context.Context, principalIDs []string, permission model.Permission, at time.Time) (bool, error) {
	ids, err := r.ResolveAccessibleResources(ctx, principalIDs, permission, nil, at)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
