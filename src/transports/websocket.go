package transports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// Compile-time check to ensure WebSocketConn implements IConnection
var _ interfaces.IConnection = (*WebSocketConn)(nil)

// upgrader accepts any origin; real-time clients are not authenticated.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

// WebSocketConn implements interfaces.IConnection on top of a server-side
// Gorilla WebSocket. Writes are serialized; gorilla allows one concurrent
// writer and one concurrent reader.
type WebSocketConn struct {
	name    string
	config  *models.MWebSocketConfig
	logger  *logger.Logger
	writer  http.ResponseWriter
	request *http.Request

	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	isOpen  bool
}

// -----------------------------------------------------------------------------

// NewWebSocketConn wraps an HTTP exchange that is about to be upgraded.
func NewWebSocketConn(w http.ResponseWriter, r *http.Request, config *models.MWebSocketConfig, logger *logger.Logger) *WebSocketConn {
	return &WebSocketConn{
		name:    "WebSocketConn",
		config:  config,
		logger:  logger,
		writer:  w,
		request: r,
	}
}

// -----------------------------------------------------------------------------

// Accept upgrades the HTTP connection.
func (w *WebSocketConn) Accept(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return nil
	}

	conn, err := upgrader.Upgrade(w.writer, w.request, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	if w.config.ReadLimit > 0 {
		conn.SetReadLimit(w.config.ReadLimit)
	}

	w.conn = conn
	w.isOpen = true
	w.logger.Debug("%s : accepted %s from %s", w.name, w.request.URL.Path, w.request.RemoteAddr)
	return nil
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the connection is accepted and not closed.
func (w *WebSocketConn) IsOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isOpen
}

// -----------------------------------------------------------------------------

// SendText writes one text frame under the configured write timeout.
func (w *WebSocketConn) SendText(ctx context.Context, data []byte) error {
	conn := w.current()
	if conn == nil {
		return models.ErrConnectionClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(w.writeTimeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.markClosed()
		return mapError(err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ReceiveText blocks for the next text frame. Binary frames are skipped.
// Cancelling ctx unblocks the read.
func (w *WebSocketConn) ReceiveText(ctx context.Context) (string, error) {
	conn := w.current()
	if conn == nil {
		return "", models.ErrConnectionClosed
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			w.markClosed()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", mapError(err)
		}
		if msgType == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// -----------------------------------------------------------------------------

// Close sends a normal close frame and closes the socket. Idempotent.
func (w *WebSocketConn) Close() error {
	w.mu.Lock()
	conn := w.conn
	wasOpen := w.isOpen
	w.isOpen = false
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	if wasOpen {
		w.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
	}
	return conn.Close()
}

// -----------------------------------------------------------------------------

func (w *WebSocketConn) current() *websocket.Conn {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn
}

func (w *WebSocketConn) markClosed() {
	w.mu.Lock()
	w.isOpen = false
	w.mu.Unlock()
}

func (w *WebSocketConn) writeTimeout() time.Duration {
	if w.config.WriteTimeout > 0 {
		return w.config.WriteTimeout
	}
	return 5 * time.Second
}

// -----------------------------------------------------------------------------

// mapError turns peer closes into models.ErrConnectionClosed.
func mapError(err error) error {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, websocket.ErrCloseSent):
		return fmt.Errorf("%w: %v", models.ErrConnectionClosed, err)
	}
	return err
}
