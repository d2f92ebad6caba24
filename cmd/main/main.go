package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rates-ingestor/src/config"
	"rates-ingestor/src/grpc_control"
	"rates-ingestor/src/ingestor"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/rest"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to YAML config file (defaults and environment only when empty)")
	flag.Parse()

	// Load config from defaults, YAML, .env and environment
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger, err := logger.NewLogger(config.Logger, config.Name)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	// Start the service: store, relay, updater
	ctx := context.Background()
	service := ingestor.NewService(config, appLogger)
	if err := service.Start(ctx); err != nil {
		appLogger.Critical("failed to start service: %v", err)
		os.Exit(1)
	}

	// Start REST API server
	restServer := rest.NewRestServer(fmt.Sprintf(":%d", config.Port), service, appLogger.Named("rest"))
	if err := restServer.Start(); err != nil {
		appLogger.Critical("failed to start REST server: %v", err)
		_ = service.Stop()
		os.Exit(1)
	}

	// Start gRPC health server
	grpcService, err := grpc_control.NewGRPCService(
		fmt.Sprintf("%s:%d", config.GRPC_Host, config.GRPC_Port), appLogger.Named("grpc"), service.Updater, service.Relay)
	if err != nil {
		appLogger.Critical("failed to create gRPC service: %v", err)
		shutdown(appLogger, restServer, nil, service)
		os.Exit(1)
	}
	if err := grpcService.Start(); err != nil {
		appLogger.Critical("failed to start gRPC service: %v", err)
		shutdown(appLogger, restServer, nil, service)
		os.Exit(1)
	}

	appLogger.Info("rates ingestor running. REST API: :%d, gRPC: %s:%d",
		config.Port, config.GRPC_Host, config.GRPC_Port)
	appLogger.Info("Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down...")
	shutdown(appLogger, restServer, grpcService, service)
}

// shutdown stops the edges first so no request reaches a closed store.
func shutdown(log *logger.Logger, restServer *rest.RestServer, grpcService *grpc_control.GRPCService, service *ingestor.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := restServer.Stop(ctx); err != nil {
		log.Warning("REST server stop: %v", err)
	}
	if grpcService != nil {
		if err := grpcService.Stop(ctx); err != nil {
			log.Warning("gRPC service stop: %v", err)
		}
	}
	if err := service.Stop(); err != nil {
		log.Warning("service stop: %v", err)
	}
}
