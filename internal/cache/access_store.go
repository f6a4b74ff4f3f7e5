package cache

import (
	"context"
	"time"

	"sqlzibar/internal/access"
)

// CachedAccessStore wraps an access.Store, caching AccessibleResourceIDs
// results. RoleIDsForPermission and ComposableAccessibleQuery pass through
// uncached: the former is cheap and rarely the bottleneck, the latter
// returns a query fragment meant to be joined server-side, not a value
// worth memoizing in application memory.
type CachedAccessStore struct {
	cache *Cache
	base  access.Store
}

var _ access.Store = (*CachedAccessStore)(nil)

// NewCachedAccessStore wraps base with cache. A nil or disabled cache
// makes every call a pure passthrough.
func NewCachedAccessStore(cache *Cache, base access.Store) *CachedAccessStore {
	return &CachedAccessStore{cache: cache, base: base}
}

func (s *CachedAccessStore) RoleIDsForPermission(ctx context.Context, permissionID string) ([]string, error) {
	return s.base.RoleIDsForPermission(ctx, permissionID)
}

func (s *CachedAccessStore) ComposableAccessibleQuery(ctx context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) (access.ComposableQuery, error) {
	return s.base.ComposableAccessibleQuery(ctx, principalIDs, roleIDs, at, resourceTypeID)
}

func (s *CachedAccessStore) AccessibleResourceIDs(ctx context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) ([]string, error) {
	if !s.cache.enabled() {
		return s.base.AccessibleResourceIDs(ctx, principalIDs, roleIDs, at, resourceTypeID)
	}

	key := s.cache.key(principalIDs, roleIDs, resourceTypeID)
	if ids, found := s.cache.get(ctx, key); found {
		return ids, nil
	}

	ids, err := s.base.AccessibleResourceIDs(ctx, principalIDs, roleIDs, at, resourceTypeID)
	if err != nil {
		return nil, err
	}
	s.cache.set(key, ids)
	return ids, nil
}
