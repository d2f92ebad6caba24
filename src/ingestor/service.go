package ingestor

import (
	"context"
	"fmt"
	"sync"

	"rates-ingestor/src/config"
	"rates-ingestor/src/factories"
	"rates-ingestor/src/hub"
	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/relay"
	"rates-ingestor/src/serializers"
)

// -----------------------------------------------------------------------------
// Core Application Struct
// -----------------------------------------------------------------------------

// Service owns every long-lived component of the process: the store, the
// quote source, the event relay, the real-time hub, the dispatcher and the
// rates updater.
type Service struct {
	Name    string
	Config  *config.Config
	Logger  *logger.Logger
	Factory *factories.ServiceFactory

	Store      interfaces.IPriceRepository
	Source     interfaces.IQuoteSource
	Relay      *relay.NATSRelay
	Hub        *hub.Hub
	Dispatcher *EventDispatcher
	Updater    *RatesUpdater

	mu      sync.Mutex
	started bool
}

// -----------------------------------------------------------------------------

// NewService creates a new Service. Nothing is opened until Start.
func NewService(config *config.Config, logger *logger.Logger) *Service {
	return &Service{
		Name:    "RatesService",
		Config:  config,
		Logger:  logger,
		Factory: factories.NewServiceFactory(config, logger),
		Hub:     hub.NewHub(serializers.NewJSONSerializer(), logger),
	}
}

// -----------------------------------------------------------------------------
// Public Lifecycle Methods
// -----------------------------------------------------------------------------

// Start opens storage, connects the relay and starts the updater when
// rates.auto_start is set. Storage failures and a required-but-absent bus
// are returned.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.Logger.Info("%s : starting", s.Name)

	// 1. Storage first - fail fast if unavailable
	repo, err := s.Factory.CreateStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.Store = repo

	// 2. Quote source
	source, err := s.Factory.CreateQuoteSource()
	if err != nil {
		_ = s.Store.Close()
		return fmt.Errorf("failed to create quote source: %w", err)
	}
	s.Source = source

	// 3. Event relay and dispatcher
	s.Relay = s.Factory.CreateRelay()
	s.Dispatcher = NewEventDispatcher(s.Relay, s.Hub, s.Relay.SourceID(), s.Logger)
	if err := s.Relay.Subscribe(ctx, s.Dispatcher.HandleInbound); err != nil {
		_ = s.Store.Close()
		return fmt.Errorf("failed to register relay handler: %w", err)
	}
	if err := s.Relay.Connect(ctx); err != nil {
		_ = s.Store.Close()
		return fmt.Errorf("failed to connect relay: %w", err)
	}

	// 4. Rates updater
	s.Updater = NewRatesUpdater(s.Config.Rates, s.Store, s.Source, s.Dispatcher, s.Logger)
	if s.Config.Rates.AutoStart {
		if err := s.Updater.Start(); err != nil {
			_ = s.Relay.Close()
			_ = s.Store.Close()
			return fmt.Errorf("failed to start rates updater: %w", err)
		}
	}

	s.started = true
	s.Logger.Info("%s : started (bus connected: %t)", s.Name, s.Relay.IsConnected())
	return nil
}

// -----------------------------------------------------------------------------

// Stop stops the updater, ends the real-time sessions, then closes the relay
// and the store.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	s.Logger.Info("%s : stopping", s.Name)

	if err := s.Updater.Stop(); err != nil {
		s.Logger.Error("%s : failed to stop rates updater: %v", s.Name, err)
	}
	s.Hub.CloseAll()
	if err := s.Relay.Close(); err != nil {
		s.Logger.Error("%s : failed to close relay: %v", s.Name, err)
	}
	if err := s.Store.Close(); err != nil {
		s.Logger.Error("%s : failed to close store: %v", s.Name, err)
	}

	s.Logger.Info("%s : stopped", s.Name)
	return nil
}

// -----------------------------------------------------------------------------

// IsStarted reports whether Start completed.
func (s *Service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
