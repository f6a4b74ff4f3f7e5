// Package principals resolves a caller's effective set of principal ids
// (itself plus its direct group memberships) and manages group membership.
// Resolution is single-level by design: nested groups are rejected at
// insertion rather than walked around at read time.
package principals

import (
	"context"
	"fmt"

	"sqlzibar/internal/engineerr"
	"sqlzibar/internal/model"
	"sqlzibar/internal/storage"
)

// Store is the subset of storage.PrincipalRepo the resolver depends on.
type Store interface {
	GetPrincipal(ctx context.Context, id string) (*model.Principal, error)
	GroupsForPrincipal(ctx context.Context, principalID string) ([]string, error)
	UserGroupsByPrincipalIDs(ctx context.Context, groupPrincipalIDs []string) ([]model.UserGroup, error)
	AddToGroup(ctx context.Context, principalID, groupID string) error
	RemoveFromGroup(ctx context.Context, principalID, groupID string) error
}

var _ Store = (*storage.PrincipalRepo)(nil)

// Resolver implements the principal resolver (spec §4.1).
type Resolver struct {
	store Store
}

// New constructs a principal resolver.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolvePrincipalIds returns the input principal id followed by every
// group principal id that currently contains it. It returns an empty slice
// if the principal itself does not exist, and never recurses further than
// one level.
func (r *Resolver) ResolvePrincipalIds(ctx context.Context, principalID string) ([]string, error) {
	p, err := r.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("resolve principal ids: %w", err)
	}
	if p == nil {
		return []string{}, nil
	}

	groupIDs, err := r.store.GroupsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("resolve principal ids: %w", err)
	}

	out := make([]string, 0, len(groupIDs)+1)
	out = append(out, principalID)
	out = append(out, groupIDs...)
	return out, nil
}

// AddToGroup adds principalID to groupID. It fails with INVALID_MEMBERSHIP
// if the principal is itself a group — nested groups are never permitted.
func (r *Resolver) AddToGroup(ctx context.Context, principalID, groupID string) error {
	p, err := r.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("add to group: %w", err)
	}
	if p == nil {
		return engineerr.New(engineerr.UnknownPrincipal, "principal "+principalID+" does not exist")
	}
	if p.PrincipalTypeID == model.PrincipalTypeGroup {
		return engineerr.New(engineerr.InvalidMembership, "principal "+principalID+" is itself a group")
	}
	return r.store.AddToGroup(ctx, principalID, groupID)
}

// RemoveFromGroup removes a membership. Removing a membership that doesn't
// exist is not an error.
func (r *Resolver) RemoveFromGroup(ctx context.Context, principalID, groupID string) error {
	return r.store.RemoveFromGroup(ctx, principalID, groupID)
}

// GetGroupsForPrincipal returns the UserGroup rows corresponding to
// principalID's direct memberships. A group principal always returns an
// empty slice: groups cannot themselves be members of other groups.
func (r *Resolver) GetGroupsForPrincipal(ctx context.Context, principalID string) ([]model.UserGroup, error) {
	groupPrincipalIDs, err := r.store.GroupsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("get groups for principal: %w", err)
	}
	if len(groupPrincipalIDs) == 0 {
		return nil, nil
	}
	return r.store.UserGroupsByPrincipalIDs(ctx, groupPrincipalIDs)
}
