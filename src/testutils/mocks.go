package testutils

import (
	"context"
	"sync"
	"time"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// MockConnection is a scripted interfaces.IConnection. Frames pushed on
// Incoming are returned by ReceiveText; closing Incoming simulates a regular
// disconnect unless RecvErr is set. Close unblocks a pending ReceiveText.
type MockConnection struct {
	Incoming  chan string
	AcceptErr error
	SendErr   error
	RecvErr   error

	Mu       sync.Mutex
	Sent     [][]byte
	Open     bool
	Accepted bool
	Closed   bool

	closing chan struct{}
}

func NewMockConnection() *MockConnection {
	return &MockConnection{Incoming: make(chan string, 16), Open: true, closing: make(chan struct{})}
}

func (m *MockConnection) Accept(ctx context.Context) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.AcceptErr != nil {
		return m.AcceptErr
	}
	m.Accepted = true
	return nil
}

func (m *MockConnection) IsOpen() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Open && !m.Closed
}

func (m *MockConnection) SendText(ctx context.Context, data []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, append([]byte(nil), data...))
	return nil
}

func (m *MockConnection) ReceiveText(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.closing:
		return "", models.ErrConnectionClosed
	case msg, ok := <-m.Incoming:
		if ok {
			return msg, nil
		}
		if m.RecvErr != nil {
			return "", m.RecvErr
		}
		return "", models.ErrConnectionClosed
	}
}

func (m *MockConnection) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.Closed && m.closing != nil {
		close(m.closing)
	}
	m.Closed = true
	return nil
}

// SentMessages returns a copy of the frames written so far, as strings.
func (m *MockConnection) SentMessages() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, len(m.Sent))
	for i, b := range m.Sent {
		out[i] = string(b)
	}
	return out
}

// -----------------------------------------------------------------------------

// FakeClock returns a controllable time.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// -----------------------------------------------------------------------------

// MockQuoteSource is an interfaces.IQuoteSource returning canned prices for
// the requested symbols.
type MockQuoteSource struct {
	Name   string
	Prices map[string]string
	Err    error
	// Block, when set, makes FetchPrices wait for it to be closed or for ctx.
	Block chan struct{}

	Mu    sync.Mutex
	Calls [][]string
}

var _ interfaces.IQuoteSource = (*MockQuoteSource)(nil)

func NewMockQuoteSource(prices map[string]string) *MockQuoteSource {
	return &MockQuoteSource{Name: "mock", Prices: prices}
}

func (m *MockQuoteSource) GetName() string     { return m.Name }
func (m *MockQuoteSource) GetEndPoint() string { return "mock://quotes" }

func (m *MockQuoteSource) FetchPrices(ctx context.Context, symbols []string) (map[string]string, error) {
	m.Mu.Lock()
	m.Calls = append(m.Calls, append([]string(nil), symbols...))
	block := m.Block
	m.Mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return map[string]string{}, ctx.Err()
		}
	}

	out := make(map[string]string)
	for _, s := range symbols {
		if p, ok := m.Prices[s]; ok {
			out[s] = p
		}
	}
	if len(out) == 0 {
		return out, m.Err
	}
	return out, nil
}

// CallCount returns the number of FetchPrices calls.
func (m *MockQuoteSource) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Calls)
}

// -----------------------------------------------------------------------------

// RecordingNotifier captures every notified event.
type RecordingNotifier struct {
	Mu     sync.Mutex
	Events []*models.MEvent
}

func (r *RecordingNotifier) Notify(ctx context.Context, event *models.MEvent) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Events = append(r.Events, event)
}

// Snapshot returns a copy of the recorded events.
func (r *RecordingNotifier) Snapshot() []*models.MEvent {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return append([]*models.MEvent(nil), r.Events...)
}

// -----------------------------------------------------------------------------

// MockRelay is an in-memory interfaces.IEventRelay.
type MockRelay struct {
	Mu        sync.Mutex
	Connected bool
	Published []*models.MEvent
	Handler   interfaces.IEventHandler
	ConnErr   error
	Closes    int
}

var _ interfaces.IEventRelay = (*MockRelay)(nil)

func (m *MockRelay) Connect(ctx context.Context) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ConnErr != nil {
		return m.ConnErr
	}
	m.Connected = true
	return nil
}

func (m *MockRelay) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Connected = false
	m.Closes++
	return nil
}

func (m *MockRelay) IsConnected() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Connected
}

func (m *MockRelay) Publish(ctx context.Context, event *models.MEvent) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.Connected {
		return
	}
	m.Published = append(m.Published, event)
}

func (m *MockRelay) Subscribe(ctx context.Context, handler interfaces.IEventHandler) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Handler = handler
	return nil
}

// Deliver simulates an inbound bus event.
func (m *MockRelay) Deliver(event *models.MEvent) {
	m.Mu.Lock()
	h := m.Handler
	m.Mu.Unlock()
	if h != nil {
		h(event)
	}
}

// PublishedEvents returns a copy of the published events.
func (m *MockRelay) PublishedEvents() []*models.MEvent {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]*models.MEvent(nil), m.Published...)
}
