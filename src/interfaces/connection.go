package interfaces

import (
	"context"

	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// IConnection is one accepted real-time client connection.
type IConnection interface {
	// Accept completes the handshake.
	Accept(ctx context.Context) error

	// IsOpen reports whether the connection can still send.
	IsOpen() bool

	// SendText writes one text frame.
	SendText(ctx context.Context, data []byte) error

	// ReceiveText blocks for the next text frame.
	// Returns models.ErrConnectionClosed on a regular disconnect.
	ReceiveText(ctx context.Context) (string, error)

	// Close closes the connection. Safe to call more than once.
	Close() error
}

// -----------------------------------------------------------------------------

// IBroadcaster fans an event out to every live connection.
type IBroadcaster interface {
	Broadcast(ctx context.Context, event *models.MEvent)
}
