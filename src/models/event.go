package models

// -----------------------------------------------------------------------------

// MEventType is the discriminant of an event envelope.
type MEventType string

const (
	EventSymbolCreated MEventType = "symbol_created"
	EventSymbolUpdated MEventType = "symbol_updated"
	EventSymbolDeleted MEventType = "symbol_deleted"
	EventRatesUpdated  MEventType = "rates_updated"
	EventWelcome       MEventType = "welcome"
	EventPong          MEventType = "pong"
)

// MetaSource is the meta key carrying the identity of the publishing instance.
const MetaSource = "source"

// -----------------------------------------------------------------------------

// MEvent is the envelope shared by the bus and the real-time connections:
// {"type": ..., "payload": ..., "meta": {"source": ...}}.
// Events are transported only, never persisted.
type MEvent struct {
	Type    MEventType     `json:"type"`
	Payload any            `json:"payload,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// NewEvent builds an event without metadata.
func NewEvent(eventType MEventType, payload any) *MEvent {
	return &MEvent{Type: eventType, Payload: payload}
}

// Source returns the originating instance id, or "" when absent.
func (e *MEvent) Source() string {
	if e == nil || e.Meta == nil {
		return ""
	}
	source, _ := e.Meta[MetaSource].(string)
	return source
}
