package ingestor

import (
	"context"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// EventDispatcher routes events to both audiences: the external bus through
// the relay and the local real-time connections through the broadcaster.
// Inbound bus events that this instance published itself are dropped.
type EventDispatcher struct {
	name        string
	relay       interfaces.IEventRelay
	broadcaster interfaces.IBroadcaster
	sourceID    string
	logger      *logger.Logger
}

// -----------------------------------------------------------------------------

// NewEventDispatcher wires the relay and the broadcaster. sourceID is the
// identity the relay stamps on outbound events.
func NewEventDispatcher(relay interfaces.IEventRelay, broadcaster interfaces.IBroadcaster, sourceID string, logger *logger.Logger) *EventDispatcher {
	return &EventDispatcher{
		name:        "EventDispatcher",
		relay:       relay,
		broadcaster: broadcaster,
		sourceID:    sourceID,
		logger:      logger,
	}
}

// -----------------------------------------------------------------------------

// Notify publishes the event on the bus, then broadcasts it locally.
func (d *EventDispatcher) Notify(ctx context.Context, event *models.MEvent) {
	d.relay.Publish(ctx, event)
	d.broadcaster.Broadcast(ctx, event)
}

// -----------------------------------------------------------------------------

// Emit builds an event, dispatches it and returns it.
func (d *EventDispatcher) Emit(ctx context.Context, eventType models.MEventType, payload any) *models.MEvent {
	event := models.NewEvent(eventType, payload)
	d.Notify(ctx, event)
	return event
}

// -----------------------------------------------------------------------------

// HandleInbound is registered as the relay handler.
func (d *EventDispatcher) HandleInbound(event *models.MEvent) {
	if d.sourceID != "" && event.Source() == d.sourceID {
		return
	}
	d.logger.Debug("%s : inbound %s event from %q", d.name, event.Type, event.Source())
	d.broadcaster.Broadcast(context.Background(), event)
}
