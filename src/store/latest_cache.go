package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/models"
	"rates-ingestor/src/serializers"
)

// -----------------------------------------------------------------------------

// MemoryLatestCache keeps the newest observation per symbol in process.
type MemoryLatestCache struct {
	mu     sync.RWMutex
	latest map[string]models.MPriceObservation
}

// NewMemoryLatestCache creates an empty cache.
func NewMemoryLatestCache() *MemoryLatestCache {
	return &MemoryLatestCache{latest: make(map[string]models.MPriceObservation)}
}

// Put stores obs unless a newer observation of the same symbol is cached.
func (c *MemoryLatestCache) Put(ctx context.Context, obs *models.MPriceObservation) error {
	code := strings.ToUpper(obs.SymbolCode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.latest[code]; ok && cur.FetchedAt.After(obs.FetchedAt) {
		return nil
	}
	c.latest[code] = *obs
	return nil
}

// Get returns the cached observation of symbol.
func (c *MemoryLatestCache) Get(ctx context.Context, symbol string) (*models.MPriceObservation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obs, ok := c.latest[strings.ToUpper(symbol)]
	if !ok {
		return nil, false, nil
	}
	return &obs, true, nil
}

// Close is a no-op.
func (c *MemoryLatestCache) Close() error { return nil }

// Health always succeeds for the in-process cache.
func (c *MemoryLatestCache) Health(ctx context.Context) error { return nil }

// -----------------------------------------------------------------------------

// RedisLatestCache stores the newest observation per symbol under
// "rates:latest:<SYMBOL>" as JSON with a TTL.
type RedisLatestCache struct {
	rdb        *redis.Client
	ttl        time.Duration
	serializer interfaces.ISerializer
}

// -----------------------------------------------------------------------------

// NewRedisLatestCache creates the cache and pings the server.
func NewRedisLatestCache(ctx context.Context, cfg models.MRedisConfig) (*RedisLatestCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Perform a ping to ensure Redis is reachable
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLatestCache{
		rdb:        rdb,
		ttl:        cfg.TTL,
		serializer: serializers.NewJSONSerializer(),
	}, nil
}

func latestKey(symbol string) string { return "rates:latest:" + strings.ToUpper(symbol) }

// -----------------------------------------------------------------------------

// Put stores obs unless a newer observation of the same symbol is cached.
func (r *RedisLatestCache) Put(ctx context.Context, obs *models.MPriceObservation) error {
	cur, found, err := r.Get(ctx, obs.SymbolCode)
	if err == nil && found && cur.FetchedAt.After(obs.FetchedAt) {
		return nil
	}

	b, err := r.serializer.Marshal(obs)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, latestKey(obs.SymbolCode), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest rate in Redis for %s: %w", obs.SymbolCode, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Get returns the cached observation of symbol.
func (r *RedisLatestCache) Get(ctx context.Context, symbol string) (*models.MPriceObservation, bool, error) {
	b, err := r.rdb.Get(ctx, latestKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get latest rate from Redis for %s: %w", symbol, err)
	}

	var obs models.MPriceObservation
	if err := r.serializer.Unmarshal(b, &obs); err != nil {
		return nil, false, err
	}
	return &obs, true, nil
}

// -----------------------------------------------------------------------------

// Health checks Redis connection health.
func (r *RedisLatestCache) Health(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisLatestCache) Close() error {
	return r.rdb.Close()
}
