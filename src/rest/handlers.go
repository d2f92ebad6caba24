package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/models"
	"rates-ingestor/src/transports"
)

const (
	maxBodyBytes     = 1 << 20
	maxCodeLength    = 20
	maxNameLength    = 200
	maxTypeLength    = 100
	defaultRateLimit = 50
	maxRateLimit     = 500
	healthTimeout    = 2 * time.Second
)

// -----------------------------------------------------------------------------
// Request / response bodies
// -----------------------------------------------------------------------------

type createItemRequest struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
}

type publishRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type taskStatusResponse struct {
	NATSConnected bool                    `json:"nats_connected"`
	RatesUpdater  models.MSchedulerStatus `json:"rates_updater"`
}

type runTaskResponse struct {
	CreatedRates int                `json:"created_rates"`
	Status       taskStatusResponse `json:"status"`
}

type natsStatusResponse struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
	Subject   string `json:"subject"`
	SourceID  string `json:"source_id"`
}

type publishResponse struct {
	Published bool           `json:"published"`
	Event     *models.MEvent `json:"event"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// cacheHealth is implemented by stores fronted by a latest-rate cache.
type cacheHealth interface {
	CacheHealth(ctx context.Context) error
}

// handleHealth answers 503 when the store is down. A failing cache only
// degrades the status since reads fall back to the store.
func (s *RestServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	storeState, cacheState := "ok", "ok"
	if err := s.service.Store.Health(ctx); err != nil {
		s.logger.Error("%s : store health check failed: %v", s.name, err)
		storeState, status, code = err.Error(), "unavailable", http.StatusServiceUnavailable
	}
	if ch, ok := s.service.Store.(cacheHealth); ok {
		if err := ch.CacheHealth(ctx); err != nil {
			s.logger.Warning("%s : cache health check failed: %v", s.name, err)
			cacheState = err.Error()
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}

	s.writeJSON(w, code, map[string]any{
		"status":         status,
		"store":          storeState,
		"cache":          cacheState,
		"nats_connected": s.service.Relay.IsConnected(),
		"updater":        s.service.Updater.IsRunning(),
	})
}

// -----------------------------------------------------------------------------
// Items
// -----------------------------------------------------------------------------

func (s *RestServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Store.ListTrackedSymbols(r.Context(), false)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

// -----------------------------------------------------------------------------

func (s *RestServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	item, err := s.service.Store.GetTrackedSymbol(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

// -----------------------------------------------------------------------------

func (s *RestServer) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !s.readJSON(w, r, s.serializer, &req) {
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" || len(code) > maxCodeLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("code must be 1..%d characters", maxCodeLength))
		return
	}
	if len(req.Name) > maxNameLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("name must be at most %d characters", maxNameLength))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	item, err := s.service.Store.InsertTrackedSymbol(r.Context(), code, req.Name, enabled)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.service.Dispatcher.Emit(s.emitContext(r), models.EventSymbolCreated, item)
	s.writeJSON(w, http.StatusCreated, item)
}

// -----------------------------------------------------------------------------

func (s *RestServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	// only name and enabled may be changed
	var patch models.MSymbolPatch
	if !s.readJSON(w, r, s.strict, &patch) {
		return
	}
	if patch.Name != nil && len(*patch.Name) > maxNameLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("name must be at most %d characters", maxNameLength))
		return
	}

	item, err := s.service.Store.UpdateTrackedSymbol(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.service.Dispatcher.Emit(s.emitContext(r), models.EventSymbolUpdated, item)
	s.writeJSON(w, http.StatusOK, item)
}

// -----------------------------------------------------------------------------

func (s *RestServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	if err := s.service.Store.DeleteTrackedSymbol(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.service.Dispatcher.Emit(s.emitContext(r), models.EventSymbolDeleted, map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

func (s *RestServer) handleRunTask(w http.ResponseWriter, r *http.Request) {
	// a client disconnect must not abort a cycle halfway through its writes
	created, err := s.service.Updater.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		s.logger.Error("%s : manual run failed: %v", s.name, err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, runTaskResponse{
		CreatedRates: created,
		Status:       s.taskStatus(),
	})
}

// -----------------------------------------------------------------------------

func (s *RestServer) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.taskStatus())
}

func (s *RestServer) taskStatus() taskStatusResponse {
	return taskStatusResponse{
		NATSConnected: s.service.Relay.IsConnected(),
		RatesUpdater:  s.service.Updater.Status(),
	}
}

// -----------------------------------------------------------------------------
// Rates
// -----------------------------------------------------------------------------

func (s *RestServer) handleListRates(w http.ResponseWriter, r *http.Request) {
	code, ok := s.codeParam(w, r)
	if !ok {
		return
	}

	limit := defaultRateLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRateLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be an integer in 1..%d", maxRateLimit))
			return
		}
		limit = n
	}

	rates, err := s.service.Store.ListObservations(r.Context(), code, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rates)
}

// -----------------------------------------------------------------------------

// handleLatestRate answers null when the symbol has no observation yet.
func (s *RestServer) handleLatestRate(w http.ResponseWriter, r *http.Request) {
	code, ok := s.codeParam(w, r)
	if !ok {
		return
	}
	latest, err := s.service.Store.LatestObservation(r.Context(), code)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, latest)
}

// -----------------------------------------------------------------------------
// NATS
// -----------------------------------------------------------------------------

func (s *RestServer) handleNATSStatus(w http.ResponseWriter, r *http.Request) {
	relay := s.service.Relay
	s.writeJSON(w, http.StatusOK, natsStatusResponse{
		Connected: relay.IsConnected(),
		URL:       relay.URL(),
		Subject:   relay.Subject(),
		SourceID:  relay.SourceID(),
	})
}

// -----------------------------------------------------------------------------

func (s *RestServer) handleNATSPublish(w http.ResponseWriter, r *http.Request) {
	if !s.service.Relay.IsConnected() {
		s.writeError(w, http.StatusServiceUnavailable, "NATS is not connected")
		return
	}

	var req publishRequest
	if !s.readJSON(w, r, s.serializer, &req) {
		return
	}
	if req.Type == "" || len(req.Type) > maxTypeLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("type must be 1..%d characters", maxTypeLength))
		return
	}

	event := s.service.Dispatcher.Emit(s.emitContext(r), models.MEventType(req.Type), req.Payload)
	s.writeJSON(w, http.StatusOK, publishResponse{Published: true, Event: event})
}

// -----------------------------------------------------------------------------
// WebSocket
// -----------------------------------------------------------------------------

// handleWebSocket runs a hub session for the lifetime of the connection.
func (s *RestServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn := transports.NewWebSocketConn(w, r, &s.service.Config.WebSocket, s.logger)
	defer conn.Close()

	if err := s.service.Hub.Serve(r.Context(), conn); err != nil {
		s.logger.Warning("%s : websocket session on %s ended: %v", s.name, r.URL.Path, err)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// emitContext detaches event fan-out from the request lifetime.
func (s *RestServer) emitContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *RestServer) itemID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return uint(id), true
}

func (s *RestServer) codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" || len(code) > maxCodeLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("code must be 1..%d characters", maxCodeLength))
		return "", false
	}
	return code, true
}

func (s *RestServer) readJSON(w http.ResponseWriter, r *http.Request, serializer interfaces.ISerializer, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := serializer.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *RestServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, models.ErrDuplicateSymbol):
		s.writeError(w, http.StatusConflict, "Currency code already exists")
	default:
		s.logger.Error("%s : store failure: %v", s.name, err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *RestServer) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *RestServer) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := s.serializer.Marshal(v)
	if err != nil {
		s.logger.Error("%s : failed to encode response: %v", s.name, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
