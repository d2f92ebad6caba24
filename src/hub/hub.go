package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// PingMessage is the text frame answered with a pong event.
const PingMessage = "ping"

// welcomePayload is sent with the welcome event on every new session.
const welcomePayload = "connected"

// -----------------------------------------------------------------------------

// Hub holds the live real-time connections and fans events out to them.
// Failed or closed connections are removed on the next broadcast.
type Hub struct {
	name        string
	connections map[interfaces.IConnection]struct{}
	serializer  interfaces.ISerializer
	logger      *logger.Logger
	mu          sync.RWMutex
}

// -----------------------------------------------------------------------------

// NewHub creates an empty hub.
func NewHub(serializer interfaces.ISerializer, logger *logger.Logger) *Hub {
	return &Hub{
		name:        "Hub",
		connections: make(map[interfaces.IConnection]struct{}),
		serializer:  serializer,
		logger:      logger,
	}
}

// -----------------------------------------------------------------------------

// Connect completes the handshake and registers the connection.
func (h *Hub) Connect(ctx context.Context, conn interfaces.IConnection) error {
	if err := conn.Accept(ctx); err != nil {
		return fmt.Errorf("accept connection: %w", err)
	}

	h.mu.Lock()
	h.connections[conn] = struct{}{}
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Debug("%s : connection registered (%d live)", h.name, total)
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect removes the connection. Removing an unknown connection is a no-op.
func (h *Hub) Disconnect(conn interfaces.IConnection) {
	h.mu.Lock()
	_, existed := h.connections[conn]
	delete(h.connections, conn)
	total := len(h.connections)
	h.mu.Unlock()

	if existed {
		h.logger.Debug("%s : connection removed (%d live)", h.name, total)
	}
}

// -----------------------------------------------------------------------------

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// -----------------------------------------------------------------------------

// CloseAll removes and closes every live connection. Sessions blocked in
// Serve observe a regular disconnect and return.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	targets := make([]interfaces.IConnection, 0, len(h.connections))
	for conn := range h.connections {
		targets = append(targets, conn)
	}
	clear(h.connections)
	h.mu.Unlock()

	for _, conn := range targets {
		if err := conn.Close(); err != nil {
			h.logger.Debug("%s : close failed: %v", h.name, err)
		}
	}
	if len(targets) > 0 {
		h.logger.Info("%s : closed %d connections", h.name, len(targets))
	}
}

// -----------------------------------------------------------------------------

// Broadcast serializes the event once and sends it to a snapshot of the
// connection set. Connections that are not open or fail to receive are
// removed. Delivery errors are never reported to the caller.
func (h *Hub) Broadcast(ctx context.Context, event *models.MEvent) {
	data, err := h.serializer.Marshal(event)
	if err != nil {
		h.logger.Error("%s : failed to serialize %s event: %v", h.name, event.Type, err)
		return
	}

	// 1. Snapshot so that sends happen without holding the lock
	h.mu.RLock()
	targets := make([]interfaces.IConnection, 0, len(h.connections))
	for conn := range h.connections {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	// 2. Deliver, pruning dead members
	for _, conn := range targets {
		if !conn.IsOpen() {
			h.drop(conn)
			continue
		}
		if err := conn.SendText(ctx, data); err != nil {
			h.logger.Debug("%s : send failed, dropping connection: %v", h.name, err)
			h.drop(conn)
		}
	}
}

// -----------------------------------------------------------------------------

// Serve runs one session: register, greet, then answer pings until the peer
// goes away. A regular disconnect returns nil; any other failure is returned
// after the connection has been removed.
func (h *Hub) Serve(ctx context.Context, conn interfaces.IConnection) error {
	if err := h.Connect(ctx, conn); err != nil {
		return err
	}
	defer h.Disconnect(conn)

	if err := h.send(ctx, conn, models.NewEvent(models.EventWelcome, welcomePayload)); err != nil {
		return sessionError(err)
	}

	for {
		message, err := conn.ReceiveText(ctx)
		if err != nil {
			return sessionError(err)
		}
		if message != PingMessage {
			continue
		}
		if err := h.send(ctx, conn, models.NewEvent(models.EventPong, nil)); err != nil {
			return sessionError(err)
		}
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) send(ctx context.Context, conn interfaces.IConnection, event *models.MEvent) error {
	data, err := h.serializer.Marshal(event)
	if err != nil {
		return err
	}
	return conn.SendText(ctx, data)
}

// -----------------------------------------------------------------------------

func (h *Hub) drop(conn interfaces.IConnection) {
	h.Disconnect(conn)
	_ = conn.Close()
}

// -----------------------------------------------------------------------------

// sessionError maps a regular disconnect to nil.
func sessionError(err error) error {
	if errors.Is(err, models.ErrConnectionClosed) {
		return nil
	}
	return err
}
