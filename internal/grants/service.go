// Package grants is the write side of the engine: creating grants and
// managing group membership. Both are the hot path §5 calls out, and both
// invalidate the accessible-resource cache after a successful commit — the
// same "write, then invalidate" shape as the teacher's HTTP handlers
// calling Cache.InvalidateApp after a policy write.
package grants

import (
	"context"
	"fmt"

	"sqlzibar/internal/model"
	"sqlzibar/internal/principals"
	"sqlzibar/internal/storage"
)

// GrantStore is the persistence dependency for creating grants.
type GrantStore interface {
	CreateGrant(ctx context.Context, g model.Grant) error
}

var _ GrantStore = (*storage.GrantRepo)(nil)

// Invalidator is satisfied by cache.Cache; kept as an interface so callers
// without a cache configured can pass a no-op implementation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service wraps grant and membership writes with cache invalidation.
type Service struct {
	grants     GrantStore
	principals *principals.Resolver
	cache      Invalidator
}

// NewService constructs the write-side service.
func NewService(grants GrantStore, principalResolver *principals.Resolver, cache Invalidator) *Service {
	return &Service{grants: grants, principals: principalResolver, cache: cache}
}

// CreateGrant records a new grant and invalidates cached decisions that may
// have depended on its absence.
func (s *Service) CreateGrant(ctx context.Context, g model.Grant) error {
	if err := s.grants.CreateGrant(ctx, g); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate cache after grant: %w", err)
	}
	return nil
}

// AddToGroup adds principalID to groupID and invalidates cached decisions.
func (s *Service) AddToGroup(ctx context.Context, principalID, groupID string) error {
	if err := s.principals.AddToGroup(ctx, principalID, groupID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate cache after membership change: %w", err)
	}
	return nil
}

// RemoveFromGroup removes principalID from groupID and invalidates cached
// decisions.
func (s *Service) RemoveFromGroup(ctx context.Context, principalID, groupID string) error {
	if err := s.principals.RemoveFromGroup(ctx, principalID, groupID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate cache after membership change: %w", err)
	}
	return nil
}
