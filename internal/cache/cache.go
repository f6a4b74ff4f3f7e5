// Package cache is a two-tier cache (in-process L1 over Redis L2) for
// resolved accessible-resource sets, layered in front of internal/access's
// Store the same way the teacher layers a Cedar policy/entity cache in
// front of its storage repositories. Grants are the hottest write path
// (§5), so every write that can change a decision — a grant or a group
// membership — bumps a shared epoch instead of hunting down which cached
// sets it might have affected.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const invalidationChannel = "sqlzibar:access:invalidation"
const epochKey = "sqlzibar:access:epoch"

// Cache holds the L1 (local) and L2 (Redis) layers and the current
// invalidation epoch.
type Cache struct {
	rdb      *redis.Client
	local    *gocache.Cache
	ttl      time.Duration
	localTTL time.Duration
	epoch    int64
}

// New constructs a two-tier cache. A nil rdb or non-positive ttl disables
// caching: every lookup simply falls through to the base resolver.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	local := gocache.New(ttl, 10*time.Minute)
	c := &Cache{rdb: rdb, local: local, ttl: ttl, localTTL: ttl}

	if c.enabled() {
		c.loadEpoch(context.Background())
		go c.startInvalidationListener()
	}
	return c
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

func (c *Cache) loadEpoch(ctx context.Context) {
	n, err := c.rdb.Get(ctx, epochKey).Int64()
	if err != nil && err != redis.Nil {
		log.Printf("cache: load epoch: %v", err)
		return
	}
	c.epoch = n
}

func (c *Cache) startInvalidationListener() {
	ctx := context.Background()
	pubsub := c.rdb.Subscribe(ctx, invalidationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		epoch, err := strconv.ParseInt(msg.Payload, 10, 64)
		if err != nil {
			log.Printf("cache: invalid invalidation message: %s", msg.Payload)
			continue
		}
		if epoch > c.epoch {
			c.epoch = epoch
			c.local.Flush()
		}
	}
}

// Invalidate bumps the shared epoch, which renders every previously cached
// accessible-resource set unreachable (its key no longer matches). Callers
// invoke this after committing a grant or group-membership write.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	next, err := c.rdb.Incr(ctx, epochKey).Result()
	if err != nil {
		return fmt.Errorf("bump cache epoch: %w", err)
	}
	c.epoch = next
	c.local.Flush()
	return c.rdb.Publish(ctx, invalidationChannel, next).Err()
}

// key builds a deterministic cache key for a principal/role/type
// combination. Order-independent: callers may pass ids in any order.
func (c *Cache) key(principalIDs, roleIDs []string, resourceTypeID *string) string {
	p := sortedCopy(principalIDs)
	r := sortedCopy(roleIDs)
	typeKey := "*"
	if resourceTypeID != nil {
		typeKey = *resourceTypeID
	}
	return fmt.Sprintf("sqlzibar:access:v%d:%s:%s:%s", c.epoch, strings.Join(p, ","), strings.Join(r, ","), typeKey)
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

// get returns a cached resource id slice, checking L1 then L2.
func (c *Cache) get(ctx context.Context, key string) ([]string, bool) {
	if val, found := c.local.Get(key); found {
		if ids, ok := val.([]string); ok {
			return ids, true
		}
	}

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: redis get: %v", err)
		}
		return nil, false
	}
	var ids []string
	if jsonErr := json.Unmarshal(b, &ids); jsonErr != nil {
		return nil, false
	}
	c.local.Set(key, ids, c.localTTL)
	return ids, true
}

// set populates both tiers. The Redis write is fire-and-forget: a failed
// write just means the next reader misses L2 and recomputes from the base
// resolver, never a stale or incorrect result.
func (c *Cache) set(key string, ids []string) {
	c.local.Set(key, ids, c.localTTL)
	if b, err := json.Marshal(ids); err == nil {
		go func() {
			_ = c.rdb.Set(context.Background(), key, b, c.ttl).Err()
		}()
	}
}
