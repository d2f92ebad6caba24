package relay

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// Compile-time check to ensure NATSRelay implements IEventRelay
var _ interfaces.IEventRelay = (*NATSRelay)(nil)

const (
	defaultHost = "127.0.0.1"
	defaultPort = "4222"
)

// -----------------------------------------------------------------------------
// NATSRelay bridges local events to a NATS subject and back
// -----------------------------------------------------------------------------

// NATSRelay implements interfaces.IEventRelay. Every outbound event is stamped
// with the relay's source id so that subscribers can drop their own echoes.
type NATSRelay struct {
	name     string
	config   *models.MNATSConfig
	logger   *logger.Logger
	sourceID string

	mu sync.RWMutex

	nc         *nats.Conn             // NATS core connection
	sub        *nats.Subscription     // inbound subscription on config.Subject
	handler    interfaces.IEventHandler
	serializer interfaces.ISerializer // serialize events before sending
}

// -----------------------------------------------------------------------------

// NewNATSRelay creates a disconnected relay with a fresh source id.
func NewNATSRelay(config *models.MNATSConfig, logger *logger.Logger, serializer interfaces.ISerializer) *NATSRelay {
	return &NATSRelay{
		name:       "NATSRelay",
		config:     config,
		logger:     logger,
		sourceID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		serializer: serializer,
	}
}

// -----------------------------------------------------------------------------

// Connect checks the server is reachable with a short TCP dial, then opens the NATS
// connection. When config.Required is false a failure is logged and the relay
// stays disconnected; otherwise the error is returned.
func (r *NATSRelay) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nc != nil {
		return nil
	}

	err := r.connectLocked(ctx)
	if err == nil {
		return nil
	}
	if r.config.Required {
		return fmt.Errorf("nats connection failed: %w", err)
	}
	r.logger.Warning("%s : NATS unavailable at %s, continuing without bus: %v", r.name, r.config.URL, err)
	return nil
}

// -----------------------------------------------------------------------------

// connectLocked performs the reach check, the dial and the optional subscription.
func (r *NATSRelay) connectLocked(ctx context.Context) error {
	// 1. TCP reach check, fails fast when nothing listens
	hostPort, err := reachAddress(r.config.URL)
	if err != nil {
		return err
	}
	reachTimeout := r.config.ReachTimeout
	if reachTimeout <= 0 {
		reachTimeout = 300 * time.Millisecond
	}
	dialer := net.Dialer{Timeout: reachTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return fmt.Errorf("tcp reach check %s: %w", hostPort, err)
	}
	_ = conn.Close()

	// 2. NATS handshake
	connectTimeout := r.config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = time.Second
	}
	opts := []nats.Option{
		nats.Name(r.config.ClientID),
		nats.Timeout(connectTimeout),

		// Connection Event Handlers
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				r.logger.Warning("%s : NATS disconnected, attempting reconnect: %v", r.name, err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Info("%s : NATS successfully reconnected to %s", r.name, nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(r.config.URL, opts...)
	if err != nil {
		return err
	}

	// 3. Inbound subscription when a handler is registered
	if r.handler != nil {
		sub, err := nc.Subscribe(r.config.Subject, r.handleMsg)
		if err != nil {
			nc.Close()
			return fmt.Errorf("subscribe %s: %w", r.config.Subject, err)
		}
		r.sub = sub
	}

	r.nc = nc
	r.logger.Info("%s : connected to NATS at %s, subject %s, source %s",
		r.name, nc.ConnectedUrl(), r.config.Subject, r.sourceID)
	return nil
}

// -----------------------------------------------------------------------------

// Subscribe registers handler for inbound events. The subscription is made
// immediately when connected, or on the next successful Connect.
func (r *NATSRelay) Subscribe(ctx context.Context, handler interfaces.IEventHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handler = handler
	if r.nc == nil || r.sub != nil {
		return nil
	}
	sub, err := r.nc.Subscribe(r.config.Subject, r.handleMsg)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.config.Subject, err)
	}
	r.sub = sub
	return nil
}

// -----------------------------------------------------------------------------

// Publish stamps the event with the source id and publishes it.
// It is a no-op when disconnected; publish failures are logged and swallowed.
func (r *NATSRelay) Publish(ctx context.Context, event *models.MEvent) {
	r.mu.RLock()
	nc := r.nc
	r.mu.RUnlock()

	if nc == nil || event == nil {
		return
	}

	r.stampSource(event)

	data, err := r.serializer.Marshal(event)
	if err != nil {
		r.logger.Error("%s : failed to serialize %s event: %v", r.name, event.Type, err)
		return
	}
	if err := nc.Publish(r.config.Subject, data); err != nil {
		r.logger.Error("%s : failed to publish %s event to %s: %v", r.name, event.Type, r.config.Subject, err)
	}
}

// -----------------------------------------------------------------------------

// Emit builds an event, publishes it and returns it.
func (r *NATSRelay) Emit(ctx context.Context, eventType models.MEventType, payload any) *models.MEvent {
	event := models.NewEvent(eventType, payload)
	r.Publish(ctx, event)
	return event
}

// -----------------------------------------------------------------------------

// Close closes the connection. Safe to call repeatedly.
func (r *NATSRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nc := r.nc
	r.nc = nil
	r.sub = nil
	if nc == nil {
		return nil
	}

	nc.Close()
	r.logger.Info("%s : NATS connection closed", r.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected reports whether a connection handle is held.
func (r *NATSRelay) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nc != nil
}

// SourceID returns the identity stamped on outbound events.
func (r *NATSRelay) SourceID() string { return r.sourceID }

// URL returns the configured server URL.
func (r *NATSRelay) URL() string { return r.config.URL }

// Subject returns the configured subject.
func (r *NATSRelay) Subject() string { return r.config.Subject }

// -----------------------------------------------------------------------------

// stampSource sets meta.source unless already present.
func (r *NATSRelay) stampSource(event *models.MEvent) {
	if event.Meta == nil {
		event.Meta = make(map[string]any, 1)
	}
	if _, ok := event.Meta[models.MetaSource]; !ok {
		event.Meta[models.MetaSource] = r.sourceID
	}
}

// -----------------------------------------------------------------------------

// handleMsg decodes an inbound message and hands it to the handler.
// Anything that is not a JSON object is dropped; a panicking handler only
// loses the current message.
func (r *NATSRelay) handleMsg(msg *nats.Msg) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("%s : event handler panic: %v", r.name, rec)
		}
	}()

	event, ok := r.decode(msg.Data)
	if !ok {
		return
	}

	r.mu.RLock()
	handler := r.handler
	r.mu.RUnlock()
	if handler != nil {
		handler(event)
	}
}

// -----------------------------------------------------------------------------

// decode turns a JSON object into an event. Unknown keys are dropped.
func (r *NATSRelay) decode(data []byte) (*models.MEvent, bool) {
	var raw map[string]any
	if err := r.serializer.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, false
	}

	event := &models.MEvent{Payload: raw["payload"]}
	if t, ok := raw["type"].(string); ok {
		event.Type = models.MEventType(t)
	}
	if meta, ok := raw["meta"].(map[string]any); ok {
		event.Meta = meta
	}
	return event, true
}

// -----------------------------------------------------------------------------

// reachAddress resolves host:port from a NATS URL, defaulting both parts.
func reachAddress(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "nats://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid NATS url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		host = defaultHost
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port), nil
}
