package factories

import (
	"context"
	"fmt"

	"rates-ingestor/src/config"
	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
	"rates-ingestor/src/quotes"
	"rates-ingestor/src/relay"
	"rates-ingestor/src/serializers"
	"rates-ingestor/src/store"
	"rates-ingestor/src/utils"
)

// -----------------------------------------------------------------------------

// ServiceFactory builds the configured backends: quote source, store, latest
// cache and event relay.
type ServiceFactory struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewServiceFactory creates a new ServiceFactory instance
func NewServiceFactory(config *config.Config, logger *logger.Logger) *ServiceFactory {
	return &ServiceFactory{
		Name:   "ServiceFactory",
		Config: config,
		Logger: logger,
	}
}

// -----------------------------------------------------------------------------

// CreateQuoteSource creates the quote source named by rates.source_name
// using the dynamic registry.
func (f *ServiceFactory) CreateQuoteSource() (interfaces.IQuoteSource, error) {
	name := f.Config.Rates.SourceName

	// Dynamically fetch the constructor from the quotes package registry
	constructor, err := quotes.GetConstructor(name)
	if err != nil {
		return nil, fmt.Errorf("%w (registered: %v)", err, quotes.Names())
	}

	source, err := constructor(f.Config.Rates, f.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote source %s: %w", name, err)
	}

	f.Logger.Info("%s : created quote source %s at %s", f.Name, source.GetName(), source.GetEndPoint())
	return source, nil
}

// -----------------------------------------------------------------------------

// CreateRepository opens the configured store. A storage outage is returned.
func (f *ServiceFactory) CreateRepository(ctx context.Context) (interfaces.IPriceRepository, error) {
	switch f.Config.Database.Driver {
	case models.DriverPostgres:
		repo, err := store.NewGormStore(ctx, f.Config.Database.DSN, f.Logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case models.DriverMemory:
		f.Logger.Warning("%s : using in-memory store, data is lost on restart", f.Name)
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", f.Config.Database.Driver)
	}
}

// -----------------------------------------------------------------------------

// CreateLatestCache returns a redis cache when redis.addr is set and
// reachable, otherwise an in-memory one.
func (f *ServiceFactory) CreateLatestCache(ctx context.Context) interfaces.ILatestCache {
	if f.Config.Redis.Addr == "" {
		return store.NewMemoryLatestCache()
	}

	cache, err := store.NewRedisLatestCache(ctx, f.Config.Redis)
	if err != nil {
		f.Logger.Warning("%s : redis at %s unavailable, using memory cache: %v",
			f.Name, utils.MaskURL(f.Config.Redis.Addr), err)
		return store.NewMemoryLatestCache()
	}

	f.Logger.Info("%s : latest-rate cache on redis %s", f.Name, f.Config.Redis.Addr)
	return cache
}

// -----------------------------------------------------------------------------

// CreateStore combines the repository with the latest-rate cache.
func (f *ServiceFactory) CreateStore(ctx context.Context) (interfaces.IPriceRepository, error) {
	repo, err := f.CreateRepository(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewCachedStore(repo, f.CreateLatestCache(ctx), f.Logger), nil
}

// -----------------------------------------------------------------------------

// CreateRelay creates a disconnected NATS relay.
func (f *ServiceFactory) CreateRelay() *relay.NATSRelay {
	return relay.NewNATSRelay(&f.Config.NATS, f.Logger, serializers.NewJSONSerializer())
}
