package permissions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/pkg/metrics"
)

// DecisionCache stores permission answers for a limited time. found is
// false on a miss.
type DecisionCache interface {
	Get(ctx context.Context, key string) (granted, found bool, err error)
	Set(ctx context.Context, key string, granted bool, ttl time.Duration) error
}

// CachedAuthority remembers both grants and refusals. A failing cache is
// bypassed; authority errors are never cached.
type CachedAuthority struct {
	next    Authority
	cache   DecisionCache
	backend string
	ttl     time.Duration
	logger  logger.Logger
}

func NewCachedAuthority(next Authority, cache DecisionCache, backend string, ttl time.Duration, log logger.Logger) *CachedAuthority {
	return &CachedAuthority{
		next:    next,
		cache:   cache,
		backend: backend,
		ttl:     ttl,
		logger:  log,
	}
}

func cacheKey(actorID, permission string) string {
	return fmt.Sprintf("%s%s:%s", constants.CacheKeyPrefixPermission, actorID, permission)
}

func (c *CachedAuthority) HasPermission(ctx context.Context, actorID, permission string) (bool, error) {
	key := cacheKey(actorID, permission)

	granted, found, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.IncPermissionCache(c.backend, "error")
		c.logger.WarnwCtx(ctx, "Permission cache lookup failed, asking authority",
			"error", err,
			"permission", permission,
		)
	case found:
		metrics.IncPermissionCache(c.backend, "hit")
		return granted, nil
	default:
		metrics.IncPermissionCache(c.backend, "miss")
	}

	granted, err = c.next.HasPermission(ctx, actorID, permission)
	if err != nil {
		return false, err
	}

	if err := c.cache.Set(ctx, key, granted, c.ttl); err != nil {
		c.logger.WarnwCtx(ctx, "Failed to cache permission decision",
			"error", err,
			"permission", permission,
		)
	}
	return granted, nil
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (bool, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("redis get failed: %w", err)
	}
	return val == "1", true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, granted bool, ttl time.Duration) error {
	val := "0"
	if granted {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

type memoryEntry struct {
	granted   bool
	expiresAt time.Time
}

// DefaultMemoryCacheEntries bounds a MemoryCache built by NewMemoryCache.
const DefaultMemoryCacheEntries = 10000

// MemoryCache is a process-local DecisionCache holding at most maxEntries
// answers. Expired entries are dropped on read and swept when the cache
// is full.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: DefaultMemoryCacheEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return false, false, nil
	}
	return e.granted, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, granted bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.sweep()
		// Still full of live answers: give up an arbitrary one.
		for k := range c.entries {
			if len(c.entries) < c.maxEntries {
				break
			}
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{granted: granted, expiresAt: c.now().Add(ttl)}
	return nil
}

// Len reports the number of stored answers, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) sweep() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
