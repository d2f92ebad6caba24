package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"rates-ingestor/src/ingestor"
	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/serializers"
)

// -----------------------------------------------------------------------------
// RestServer exposes the service over HTTP and websockets
// -----------------------------------------------------------------------------

// RestServer is the HTTP edge of the service. Handlers only translate between
// HTTP and the components owned by ingestor.Service.
type RestServer struct {
	name       string
	address    string
	service    *ingestor.Service
	logger     *logger.Logger
	serializer interfaces.ISerializer
	strict     interfaces.ISerializer
	router     *mux.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewRestServer builds the router. The service must already be started.
func NewRestServer(address string, service *ingestor.Service, logger *logger.Logger) *RestServer {
	s := &RestServer{
		name:       "RestServer",
		address:    address,
		service:    service,
		logger:     logger,
		serializer: serializers.NewJSONSerializer(),
		strict:     serializers.NewStrictJSONSerializer(),
	}
	s.router = s.routes()
	return s
}

// -----------------------------------------------------------------------------

func (s *RestServer) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// tracked symbols
	r.HandleFunc("/items", s.handleListItems).Methods(http.MethodGet)
	r.HandleFunc("/items", s.handleCreateItem).Methods(http.MethodPost)
	r.HandleFunc("/items/{id:[0-9]+}", s.handleGetItem).Methods(http.MethodGet)
	r.HandleFunc("/items/{id:[0-9]+}", s.handleUpdateItem).Methods(http.MethodPatch)
	r.HandleFunc("/items/{id:[0-9]+}", s.handleDeleteItem).Methods(http.MethodDelete)

	// updater
	r.HandleFunc("/tasks/run", s.handleRunTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/status", s.handleTaskStatus).Methods(http.MethodGet)

	// observations
	r.HandleFunc("/rates", s.handleListRates).Methods(http.MethodGet)
	r.HandleFunc("/rates/latest", s.handleLatestRate).Methods(http.MethodGet)

	// bus
	r.HandleFunc("/nats/status", s.handleNATSStatus).Methods(http.MethodGet)
	r.HandleFunc("/nats/publish", s.handleNATSPublish).Methods(http.MethodPost)

	// real-time
	r.HandleFunc("/ws/items", s.handleWebSocket)
	r.HandleFunc("/ws/tasks", s.handleWebSocket)

	r.Use(s.logRequests)
	return r
}

// -----------------------------------------------------------------------------

// Handler returns the HTTP handler, mainly for tests.
func (s *RestServer) Handler() http.Handler {
	return s.router
}

// -----------------------------------------------------------------------------

// Start listens on the configured address and serves in the background.
func (s *RestServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func(srv *http.Server) {
		defer s.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("%s : HTTP server failed: %v", s.name, err)
		}
	}(s.server)

	s.logger.Info("%s : listening on %s", s.name, listener.Addr())
	return nil
}

// -----------------------------------------------------------------------------

// Addr returns the bound address once started.
func (s *RestServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

// -----------------------------------------------------------------------------

// Stop shuts the server down, closing idle connections first and forcing the
// rest when ctx expires.
func (s *RestServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		s.logger.Warning("%s : graceful shutdown interrupted: %v", s.name, err)
		_ = srv.Close()
	}
	s.wg.Wait()
	s.logger.Info("%s : stopped", s.name)
	return err
}

// -----------------------------------------------------------------------------

func (s *RestServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("%s : %s %s (%s)", s.name, r.Method, r.URL.Path, time.Since(start))
	})
}
