package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a computed result is served.
const DefaultCacheTTL = 10 * time.Minute

const (
	cacheVersionKey = "analytics:version"
	tenantVersionNS = "analytics:version:"
)

// Cache stores computed results per window. Invalidate with uuid.Nil as the
// tenant drops every tenant's entries.
//
// Stamp captures the cache generation for w before a recompute starts. Store
// only makes value visible when no invalidation for w happened since stamp
// was taken, so a result loaded from stale rows never outlives the
// invalidation that raced with it.
type Cache interface {
	Get(ctx context.Context, w Window) (Result, bool, error)
	Stamp(ctx context.Context, w Window) (string, error)
	Store(ctx context.Context, w Window, stamp string, value Result) error
	Invalidate(ctx context.Context, tenant uuid.UUID, tag string) error
}

type memoryEntry struct {
	tenant   uuid.UUID
	value    Result
	storedAt time.Time
}

// MemoryCache is an in-process TTL cache keyed by window.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	global  uint64
	gens    map[uuid.UUID]uint64
}

// NewMemoryCache creates a MemoryCache; a non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		gens:    make(map[uuid.UUID]uint64),
	}
}

// WithNow overrides the cache clock for testing.
func (c *MemoryCache) WithNow(fn func() time.Time) {
	if fn != nil {
		c.now = fn
	}
}

// Get returns the entry for w while it is younger than the TTL.
func (c *MemoryCache) Get(_ context.Context, w Window) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := w.Key()
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false, nil
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return Result{}, false, nil
	}
	return entry.value.clone(), true, nil
}

// Stamp returns the current generation of w's tenant.
func (c *MemoryCache) Stamp(_ context.Context, w Window) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stampLocked(w.Tenant), nil
}

// Store keeps value unless w's tenant was invalidated after stamp was taken.
func (c *MemoryCache) Store(_ context.Context, w Window, stamp string, value Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stamp != c.stampLocked(w.Tenant) {
		return nil
	}
	c.entries[w.Key()] = memoryEntry{tenant: w.Tenant, value: value.clone(), storedAt: c.now()}
	return nil
}

// Set stores value with a fresh timestamp.
func (c *MemoryCache) Set(ctx context.Context, w Window, value Result) error {
	stamp, err := c.Stamp(ctx, w)
	if err != nil {
		return err
	}
	return c.Store(ctx, w, stamp, value)
}

func (c *MemoryCache) stampLocked(tenant uuid.UUID) string {
	return formatInt(int64(c.global)) + ":" + formatInt(int64(c.gens[tenant]))
}

// Invalidate drops the tenant's entries regardless of their age and moves
// the tenant to a new generation.
func (c *MemoryCache) Invalidate(_ context.Context, tenant uuid.UUID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tenant == uuid.Nil {
		c.global++
	} else {
		c.gens[tenant]++
	}
	for key, entry := range c.entries {
		if tenant == uuid.Nil || entry.tenant == tenant {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares results between processes. Keys embed a global and a
// per-tenant version so invalidation is a single INCR.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache instantiates the Redis backend.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Version returns the version stored under key, initialising it when missing.
func (c *RedisCache) Version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, key, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the versioned key for w.
func (c *RedisCache) BuildKey(ctx context.Context, w Window) (string, error) {
	global, err := c.Version(ctx, cacheVersionKey)
	if err != nil {
		return "", err
	}
	tenant, err := c.Version(ctx, tenantVersionNS+w.Tenant.String())
	if err != nil {
		return "", err
	}
	return strings.Join([]string{w.Key(), formatInt(global), formatInt(tenant)}, ":"), nil
}

// Get loads the cached payload for w.
func (c *RedisCache) Get(ctx context.Context, w Window) (Result, bool, error) {
	key, err := c.BuildKey(ctx, w)
	if err != nil {
		return Result{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var value Result
	if err := json.Unmarshal(payload, &value); err != nil {
		return Result{}, false, fmt.Errorf("analytics: decode cached result: %w", err)
	}
	return value, true, nil
}

// Stamp returns the versioned key for w as of now.
func (c *RedisCache) Stamp(ctx context.Context, w Window) (string, error) {
	return c.BuildKey(ctx, w)
}

// Store writes value under the versioned key captured by Stamp. A key built
// before an invalidation is never read again, so a stale value expires
// unseen.
func (c *RedisCache) Store(ctx context.Context, w Window, stamp string, value Result) error {
	if !strings.HasPrefix(stamp, w.Key()+":") {
		return fmt.Errorf("analytics: stamp %q does not belong to %s", stamp, w.Key())
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stamp, raw, c.ttl).Err()
}

// Set stores value for w with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, w Window, value Result) error {
	key, err := c.BuildKey(ctx, w)
	if err != nil {
		return err
	}
	return c.Store(ctx, w, key, value)
}

// Invalidate bumps the tenant version, or the global one for uuid.Nil.
func (c *RedisCache) Invalidate(ctx context.Context, tenant uuid.UUID, _ string) error {
	key := cacheVersionKey
	if tenant != uuid.Nil {
		key = tenantVersionNS + tenant.String()
	}
	return c.client.Incr(ctx, key).Err()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
