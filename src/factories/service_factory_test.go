package factories

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rates-ingestor/src/config"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
	"rates-ingestor/src/store"
)

func newFactory(mutate func(*models.MConfig)) *ServiceFactory {
	m := models.DefaultConfig()
	if mutate != nil {
		mutate(&m)
	}
	return NewServiceFactory(&config.Config{MConfig: &m}, logger.NewNopLogger())
}

func TestCreateQuoteSource(t *testing.T) {
	src, err := newFactory(nil).CreateQuoteSource()
	require.NoError(t, err)
	assert.Equal(t, "binance", src.GetName())

	_, err = newFactory(func(c *models.MConfig) { c.Rates.SourceName = "nope" }).CreateQuoteSource()
	assert.ErrorContains(t, err, "unknown quote source")
}

func TestCreateRepository(t *testing.T) {
	repo, err := newFactory(nil).CreateRepository(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, repo)

	_, err = newFactory(func(c *models.MConfig) { c.Database.Driver = "sqlite" }).CreateRepository(context.Background())
	assert.Error(t, err)
}

func TestCreateLatestCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := newFactory(func(c *models.MConfig) { c.Redis.Addr = mr.Addr() }).CreateLatestCache(context.Background())
	assert.IsType(t, &store.RedisLatestCache{}, cache)
	require.NoError(t, cache.Close())

	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fallback := newFactory(func(c *models.MConfig) { c.Redis.Addr = addr }).CreateLatestCache(ctx)
	assert.IsType(t, &store.MemoryLatestCache{}, fallback)

	assert.IsType(t, &store.MemoryLatestCache{}, newFactory(nil).CreateLatestCache(context.Background()))
}

func TestCreateStoreAndRelay(t *testing.T) {
	f := newFactory(nil)

	s, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.CachedStore{}, s)
	assert.NoError(t, s.Close())

	r := f.CreateRelay()
	assert.False(t, r.IsConnected())
	assert.Equal(t, "items.updates", r.Subject())
}
