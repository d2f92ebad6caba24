package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rates-ingestor/src/config"
	"rates-ingestor/src/ingestor"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// newTestServer starts a service on the memory store with an unreachable bus
// and a fake quote feed, and serves its routes through httptest.
func newTestServer(t *testing.T) (*ingestor.Service, *httptest.Server) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, mutate func(*models.MConfig)) (*ingestor.Service, *httptest.Server) {
	t.Helper()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"symbol":%q,"price":"2.5"}`, r.URL.Query().Get("symbol"))
	}))
	t.Cleanup(feed.Close)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	busAddr := l.Addr().String()
	require.NoError(t, l.Close())

	m := models.DefaultConfig()
	m.Rates.SourceURL = feed.URL
	m.Rates.AutoStart = false
	m.NATS.URL = "nats://" + busAddr
	if mutate != nil {
		mutate(&m)
	}

	svc := ingestor.NewService(&config.Config{MConfig: &m}, logger.NewNopLogger())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })

	srv := httptest.NewServer(NewRestServer("127.0.0.1:0", svc, logger.NewNopLogger()).Handler())
	t.Cleanup(srv.Close)
	return svc, srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var welcome models.MEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, models.EventWelcome, welcome.Type)
	return conn
}

func TestItems_CRUDEmitsEvents(t *testing.T) {
	svc, srv := newTestServer(t)
	ws := dialWS(t, srv, "/ws/items")
	require.Eventually(t, func() bool { return svc.Hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	// create
	status, body := do(t, http.MethodPost, srv.URL+"/items", `{"code":"ethusdt","name":"Ethereum"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var created models.MTrackedSymbol
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "ETHUSDT", created.Code)
	assert.True(t, created.Enabled)

	var event models.MEvent
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&event))
	assert.Equal(t, models.EventSymbolCreated, event.Type)

	// duplicate
	status, _ = do(t, http.MethodPost, srv.URL+"/items", `{"code":"ETHUSDT"}`)
	assert.Equal(t, http.StatusConflict, status)

	// update
	itemURL := fmt.Sprintf("%s/items/%d", srv.URL, created.ID)
	status, body = do(t, http.MethodPatch, itemURL, `{"enabled":false}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var updated models.MTrackedSymbol
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.False(t, updated.Enabled)
	assert.Equal(t, "Ethereum", updated.Name)

	require.NoError(t, ws.ReadJSON(&event))
	assert.Equal(t, models.EventSymbolUpdated, event.Type)

	// list
	status, body = do(t, http.MethodGet, srv.URL+"/items", "")
	require.Equal(t, http.StatusOK, status)
	var items []models.MTrackedSymbol
	require.NoError(t, json.Unmarshal(body, &items))
	assert.Len(t, items, 1)

	// delete
	status, _ = do(t, http.MethodDelete, itemURL, "")
	assert.Equal(t, http.StatusNoContent, status)
	require.NoError(t, ws.ReadJSON(&event))
	assert.Equal(t, models.EventSymbolDeleted, event.Type)

	status, _ = do(t, http.MethodGet, itemURL, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, http.MethodPatch, itemURL, `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, http.MethodPatch, itemURL, `{"code":"BTCUSDT"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, http.MethodDelete, itemURL, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestItems_Validation(t *testing.T) {
	_, srv := newTestServer(t)

	status, _ := do(t, http.MethodPost, srv.URL+"/items", `{"code":"   "}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/items", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/items", `{"code":"`+strings.Repeat("A", 21)+`"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTasks_RunAndRates(t *testing.T) {
	_, srv := newTestServer(t)

	status, body := do(t, http.MethodPost, srv.URL+"/tasks/run", "")
	require.Equal(t, http.StatusOK, status, string(body))

	var run struct {
		CreatedRates int `json:"created_rates"`
		Status       struct {
			NATSConnected bool                    `json:"nats_connected"`
			RatesUpdater  models.MSchedulerStatus `json:"rates_updater"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, len(models.DefaultSymbols), run.CreatedRates)
	assert.False(t, run.Status.NATSConnected)
	assert.False(t, run.Status.RatesUpdater.Running)
	assert.Equal(t, len(models.DefaultSymbols), run.Status.RatesUpdater.LastInserted)

	status, body = do(t, http.MethodGet, srv.URL+"/rates?code=btcusdt", "")
	require.Equal(t, http.StatusOK, status)
	var rates []map[string]any
	require.NoError(t, json.Unmarshal(body, &rates))
	require.Len(t, rates, 1)
	assert.Equal(t, "BTCUSDT", rates[0]["currency_code"])

	status, body = do(t, http.MethodGet, srv.URL+"/rates/latest?code=BTCUSDT", "")
	require.Equal(t, http.StatusOK, status)
	var latest models.MPriceObservation
	require.NoError(t, json.Unmarshal(body, &latest))
	assert.Equal(t, "2.5", latest.Value.String())

	status, body = do(t, http.MethodGet, srv.URL+"/rates/latest?code=NOPEUSDT", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", string(body))

	status, body = do(t, http.MethodGet, srv.URL+"/tasks/status", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"rates_updater"`)
}

func TestRates_QueryValidation(t *testing.T) {
	_, srv := newTestServer(t)

	for _, query := range []string{"", "?code=", "?code=BTCUSDT&limit=0", "?code=BTCUSDT&limit=501", "?code=BTCUSDT&limit=x"} {
		status, _ := do(t, http.MethodGet, srv.URL+"/rates"+query, "")
		assert.Equal(t, http.StatusBadRequest, status, query)
	}

	status, body := do(t, http.MethodGet, srv.URL+"/rates?code=BTCUSDT&limit=500", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", string(body))
}

func TestNATS_StatusAndPublishWhileDisconnected(t *testing.T) {
	svc, srv := newTestServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/nats/status", "")
	require.Equal(t, http.StatusOK, status)
	var st map[string]any
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, false, st["connected"])
	assert.Equal(t, "items.updates", st["subject"])
	assert.Equal(t, svc.Relay.SourceID(), st["source_id"])

	status, _ = do(t, http.MethodPost, srv.URL+"/nats/publish", `{"type":"external_message","payload":{"text":"hi"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestWebSocket_PingPong(t *testing.T) {
	_, srv := newTestServer(t)
	ws := dialWS(t, srv, "/ws/tasks")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))
	var event models.MEvent
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&event))
	assert.Equal(t, models.EventPong, event.Type)
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)
	status, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestHealth_DegradedWhenCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	_, srv := newTestServerWith(t, func(m *models.MConfig) { m.Redis.Addr = mr.Addr() })

	status, body := do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"cache":"ok"`)

	mr.SetError("ERR simulated outage")
	status, body = do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"degraded"`)
	assert.Contains(t, string(body), `"store":"ok"`)
}

func TestRestServer_StartStop(t *testing.T) {
	svc, _ := newTestServer(t)
	server := NewRestServer("127.0.0.1:0", svc, logger.NewNopLogger())
	require.NoError(t, server.Start())

	status, _ := do(t, http.MethodGet, "http://"+server.Addr()+"/health", "")
	assert.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx))
}
