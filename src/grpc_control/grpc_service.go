package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"rates-ingestor/src/logger"
)

const (
	// UpdaterService is the health service name of the rates updater.
	UpdaterService = "rates.Updater"
	// RelayService is the health service name of the event bus relay.
	RelayService = "events.Relay"

	defaultRefreshInterval = 5 * time.Second
)

// -----------------------------------------------------------------------------

// IRunning is implemented by the rates updater.
type IRunning interface {
	IsRunning() bool
}

// IConnected is implemented by the event relay.
type IConnected interface {
	IsConnected() bool
}

// -----------------------------------------------------------------------------
// GRPCService handles gRPC server lifecycle
// -----------------------------------------------------------------------------

// GRPCService serves the standard gRPC health protocol. The overall service
// ("") is SERVING while the server runs; the updater and relay entries follow
// their components and are refreshed periodically.
type GRPCService struct {
	name     string
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *logger.Logger
	updater  IRunning
	relay    IConnected
	refresh  time.Duration

	mu      sync.RWMutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService listening on address.
func NewGRPCService(address string, logger *logger.Logger, updater IRunning, relay IConnected) (*GRPCService, error) {
	// Create listener
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	// Create gRPC server with options
	serverOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1024 * 1024),
		grpc.MaxSendMsgSize(1024 * 1024),
	}

	return &GRPCService{
		name:     "GRPCService",
		server:   grpc.NewServer(serverOptions...),
		health:   health.NewServer(),
		listener: listener,
		logger:   logger,
		updater:  updater,
		relay:    relay,
		refresh:  defaultRefreshInterval,
	}, nil
}

// -----------------------------------------------------------------------------

// SetRefreshInterval changes how often component status is polled. Call before Start.
func (g *GRPCService) SetRefreshInterval(d time.Duration) {
	if d > 0 {
		g.refresh = d
	}
}

// Addr returns the listening address.
func (g *GRPCService) Addr() string {
	return g.listener.Addr().String()
}

// -----------------------------------------------------------------------------

// Start registers the health service and serves in the background.
func (g *GRPCService) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil
	}
	g.logger.Info("%s : starting gRPC health service on %s", g.name, g.Addr())

	// Register health service
	grpc_health_v1.RegisterHealthServer(g.server, g.health)
	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	g.Refresh()

	g.done = make(chan struct{})
	g.running = true

	// Start server in goroutine
	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		if err := g.server.Serve(g.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			g.logger.Error("%s : gRPC server failed: %v", g.name, err)
		}
	}()
	go g.refreshLoop(g.done)

	return nil
}

// -----------------------------------------------------------------------------

// Refresh updates the component entries from their current state.
func (g *GRPCService) Refresh() {
	g.health.SetServingStatus(UpdaterService, servingStatus(g.updater != nil && g.updater.IsRunning()))
	g.health.SetServingStatus(RelayService, servingStatus(g.relay != nil && g.relay.IsConnected()))
}

func (g *GRPCService) refreshLoop(done <-chan struct{}) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			g.Refresh()
		}
	}
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server, forcing it when ctx expires.
func (g *GRPCService) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false
	g.logger.Info("%s : stopping gRPC service", g.name)

	close(g.done)
	g.health.Shutdown()

	// Graceful stop
	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		g.logger.Warning("%s : gRPC graceful shutdown timeout, forcing stop", g.name)
		g.server.Stop()
		<-stopped
	case <-stopped:
	}

	g.wg.Wait()
	g.logger.Info("%s : gRPC service stopped", g.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsRunning returns whether the gRPC server is running
func (g *GRPCService) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

func servingStatus(ok bool) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if ok {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}
