package interfaces

import (
	"context"

	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// IEventHandler receives decoded inbound events.
type IEventHandler func(event *models.MEvent)

// -----------------------------------------------------------------------------

// IEventRelay is the bridge to the external message bus.
type IEventRelay interface {
	// Connect establishes the connection to the message broker.
	Connect(ctx context.Context) error

	// Close closes the connection without draining. Idempotent.
	Close() error

	// IsConnected returns the current connection status.
	IsConnected() bool

	// Publish sends an event on the configured subject. Never fails the caller.
	Publish(ctx context.Context, event *models.MEvent)

	// Subscribe registers a handler on the configured subject.
	Subscribe(ctx context.Context, handler IEventHandler) error
}

// -----------------------------------------------------------------------------

// IEventNotifier is what producers of events depend on.
type IEventNotifier interface {
	Notify(ctx context.Context, event *models.MEvent)
}
