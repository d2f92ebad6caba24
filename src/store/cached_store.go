package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// CachedStore decorates a repository with a latest-rate cache: write-through
// on RecordObservation, read-through on LatestObservation. Cache failures are
// logged and never fail the call.
type CachedStore struct {
	interfaces.IPriceRepository

	name   string
	cache  interfaces.ILatestCache
	logger *logger.Logger
}

// NewCachedStore wraps repo with cache.
func NewCachedStore(repo interfaces.IPriceRepository, cache interfaces.ILatestCache, log *logger.Logger) *CachedStore {
	return &CachedStore{
		IPriceRepository: repo,
		name:             "CachedStore",
		cache:            cache,
		logger:           log,
	}
}

// -----------------------------------------------------------------------------

// RecordObservation persists then caches the new observation.
func (c *CachedStore) RecordObservation(ctx context.Context, symbol string, nominal int, value decimal.Decimal, fetchedAt time.Time, source string) (*models.MPriceObservation, error) {
	obs, err := c.IPriceRepository.RecordObservation(ctx, symbol, nominal, value, fetchedAt, source)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, obs); err != nil {
		c.logger.Warning("%s : cache write failed for %s: %v", c.name, obs.SymbolCode, err)
	}
	return obs, nil
}

// -----------------------------------------------------------------------------

// LatestObservation serves from the cache, falling back to the repository.
func (c *CachedStore) LatestObservation(ctx context.Context, symbol string) (*models.MPriceObservation, error) {
	obs, found, err := c.cache.Get(ctx, symbol)
	if err != nil {
		c.logger.Warning("%s : cache read failed for %s: %v", c.name, symbol, err)
	}
	if found {
		return obs, nil
	}

	obs, err = c.IPriceRepository.LatestObservation(ctx, symbol)
	if err != nil || obs == nil {
		return obs, err
	}
	if err := c.cache.Put(ctx, obs); err != nil {
		c.logger.Warning("%s : cache fill failed for %s: %v", c.name, symbol, err)
	}
	return obs, nil
}

// -----------------------------------------------------------------------------

// CacheHealth reports the cache state. The repository health is the
// embedded Health.
func (c *CachedStore) CacheHealth(ctx context.Context) error {
	return c.cache.Health(ctx)
}

// -----------------------------------------------------------------------------

// Close closes the cache and the repository.
func (c *CachedStore) Close() error {
	cacheErr := c.cache.Close()
	if err := c.IPriceRepository.Close(); err != nil {
		return err
	}
	return cacheErr
}
