package ingestor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rates-ingestor/src/hub"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
	"rates-ingestor/src/serializers"
	"rates-ingestor/src/testutils"
)

func newDispatcher(t *testing.T) (*EventDispatcher, *testutils.MockRelay, *testutils.MockConnection) {
	t.Helper()
	relay := &testutils.MockRelay{Connected: true}
	h := hub.NewHub(serializers.NewJSONSerializer(), logger.NewNopLogger())
	conn := testutils.NewMockConnection()
	require.NoError(t, h.Connect(context.Background(), conn))

	d := NewEventDispatcher(relay, h, "self", logger.NewNopLogger())
	require.NoError(t, relay.Subscribe(context.Background(), d.HandleInbound))
	return d, relay, conn
}

func TestDispatcher_NotifyReachesBothAudiences(t *testing.T) {
	d, relay, conn := newDispatcher(t)

	event := d.Emit(context.Background(), models.EventSymbolCreated, map[string]string{"code": "BTCUSDT"})

	require.Len(t, relay.PublishedEvents(), 1)
	assert.Same(t, event, relay.PublishedEvents()[0])
	assert.Len(t, conn.SentMessages(), 1)
}

func TestDispatcher_BusDownStillBroadcasts(t *testing.T) {
	d, relay, conn := newDispatcher(t)
	relay.Connected = false

	d.Notify(context.Background(), models.NewEvent(models.EventRatesUpdated, nil))

	assert.Empty(t, relay.PublishedEvents())
	assert.Len(t, conn.SentMessages(), 1)
}

func TestDispatcher_InboundEchoDropped(t *testing.T) {
	_, relay, conn := newDispatcher(t)

	relay.Deliver(&models.MEvent{Type: "rates_updated", Meta: map[string]any{"source": "self"}})
	assert.Empty(t, conn.SentMessages())

	relay.Deliver(&models.MEvent{Type: "external_message", Payload: "hi", Meta: map[string]any{"source": "peer"}})
	relay.Deliver(&models.MEvent{Type: "no_meta"})
	assert.Equal(t, []string{
		`{"type":"external_message","payload":"hi","meta":{"source":"peer"}}`,
		`{"type":"no_meta"}`,
	}, conn.SentMessages())
}
