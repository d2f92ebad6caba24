package hub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rates-ingestor/src/hub"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
	"rates-ingestor/src/serializers"
	"rates-ingestor/src/testutils"
)

func setup() *hub.Hub {
	return hub.NewHub(serializers.NewJSONSerializer(), logger.NewNopLogger())
}

func TestHub_BroadcastRemovesFailingConnection(t *testing.T) {
	h := setup()
	ctx := context.Background()

	a, b, c := testutils.NewMockConnection(), testutils.NewMockConnection(), testutils.NewMockConnection()
	for _, conn := range []*testutils.MockConnection{a, b, c} {
		require.NoError(t, h.Connect(ctx, conn))
	}
	b.SendErr = errors.New("broken pipe")

	h.Broadcast(ctx, models.NewEvent(models.EventRatesUpdated, []string{"BTCUSDT"}))

	want := `{"type":"rates_updated","payload":["BTCUSDT"]}`
	assert.Equal(t, []string{want}, a.SentMessages())
	assert.Equal(t, []string{want}, c.SentMessages())
	assert.Equal(t, 2, h.Count())
	assert.True(t, b.Closed)

	// the next broadcast only reaches the healthy members
	h.Broadcast(ctx, models.NewEvent(models.EventSymbolDeleted, map[string]int{"id": 1}))
	assert.Len(t, a.SentMessages(), 2)
	assert.Len(t, c.SentMessages(), 2)
}

func TestHub_BroadcastSkipsClosedConnection(t *testing.T) {
	h := setup()
	ctx := context.Background()

	open, stale := testutils.NewMockConnection(), testutils.NewMockConnection()
	require.NoError(t, h.Connect(ctx, open))
	require.NoError(t, h.Connect(ctx, stale))
	stale.Open = false

	h.Broadcast(ctx, models.NewEvent(models.EventSymbolCreated, nil))

	assert.Len(t, open.SentMessages(), 1)
	assert.Empty(t, stale.SentMessages())
	assert.Equal(t, 1, h.Count())
}

func TestHub_BroadcastEmptySet(t *testing.T) {
	h := setup()
	assert.NotPanics(t, func() {
		h.Broadcast(context.Background(), models.NewEvent(models.EventRatesUpdated, nil))
	})
}

func TestHub_DisconnectIdempotent(t *testing.T) {
	h := setup()
	conn := testutils.NewMockConnection()
	require.NoError(t, h.Connect(context.Background(), conn))

	h.Disconnect(conn)
	h.Disconnect(conn)
	h.Disconnect(testutils.NewMockConnection())
	assert.Equal(t, 0, h.Count())
}

func TestHub_ConnectAcceptFailure(t *testing.T) {
	h := setup()
	conn := testutils.NewMockConnection()
	conn.AcceptErr = errors.New("bad handshake")

	assert.Error(t, h.Connect(context.Background(), conn))
	assert.Equal(t, 0, h.Count())
}

func TestHub_ServePingPong(t *testing.T) {
	h := setup()
	conn := testutils.NewMockConnection()
	conn.Incoming <- "hello"
	conn.Incoming <- "ping"
	conn.Incoming <- "PING"
	conn.Incoming <- "ping"
	close(conn.Incoming)

	err := h.Serve(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`{"type":"welcome","payload":"connected"}`,
		`{"type":"pong"}`,
		`{"type":"pong"}`,
	}, conn.SentMessages())
	assert.Equal(t, 0, h.Count())
}

func TestHub_ServeReturnsUnexpectedError(t *testing.T) {
	h := setup()
	conn := testutils.NewMockConnection()
	conn.RecvErr = errors.New("protocol violation")
	close(conn.Incoming)

	err := h.Serve(context.Background(), conn)
	assert.EqualError(t, err, "protocol violation")
	assert.Equal(t, 0, h.Count())
}

func TestHub_ServeRegistersDuringSession(t *testing.T) {
	h := setup()
	conn := testutils.NewMockConnection()

	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), conn) }()

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)

	h.Broadcast(context.Background(), models.NewEvent(models.EventRatesUpdated, nil))
	require.Eventually(t, func() bool { return len(conn.SentMessages()) == 2 }, time.Second, 5*time.Millisecond)

	close(conn.Incoming)
	require.NoError(t, <-done)
	assert.Equal(t, 0, h.Count())
}

func TestHub_CloseAllEndsSessions(t *testing.T) {
	h := setup()
	a, b := testutils.NewMockConnection(), testutils.NewMockConnection()

	done := make(chan error, 2)
	for _, conn := range []*testutils.MockConnection{a, b} {
		go func(conn *testutils.MockConnection) { done <- h.Serve(context.Background(), conn) }(conn)
	}
	require.Eventually(t, func() bool { return h.Count() == 2 }, time.Second, 5*time.Millisecond)

	h.CloseAll()

	for range 2 {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("session still running after CloseAll")
		}
	}
	assert.Equal(t, 0, h.Count())
	assert.False(t, a.IsOpen())
	assert.False(t, b.IsOpen())

	// nothing left to close
	h.CloseAll()
}
