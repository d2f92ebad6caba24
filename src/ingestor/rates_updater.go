package ingestor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

const (
	noteNothingEnabled = "no enabled symbols"
	noteNothingSaved   = "no prices saved, symbols may be disabled or unknown"
	errNoPrices        = "failed to fetch prices, check network and symbols"
)

// -----------------------------------------------------------------------------

// Clock supplies the cycle timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// -----------------------------------------------------------------------------
// Core Struct
// -----------------------------------------------------------------------------

// RatesUpdater periodically fetches prices for the enabled symbols, persists
// them and emits one rates_updated event per cycle that stored something.
// A single driver goroutine runs while started; RunOnce may be called
// concurrently with it.
type RatesUpdater struct {
	Name     string
	Logger   *logger.Logger
	Store    interfaces.IPriceStore
	Source   interfaces.IQuoteSource
	Notifier interfaces.IEventNotifier

	interval time.Duration
	clock    Clock

	// lifecycle
	lifeMu  sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool

	// status, guarded by mu
	mu           sync.Mutex
	lastRun      *time.Time
	lastInserted int
	lastError    *string
	lastNote     *string
}

// -----------------------------------------------------------------------------

// NewRatesUpdater creates a stopped updater. A nil notifier discards events.
func NewRatesUpdater(cfg models.MRatesConfig, store interfaces.IPriceStore, source interfaces.IQuoteSource,
	notifier interfaces.IEventNotifier, logger *logger.Logger) *RatesUpdater {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	interval := cfg.Interval()
	if interval <= 0 {
		interval = time.Minute
	}
	return &RatesUpdater{
		Name:     "RatesUpdater",
		Logger:   logger,
		Store:    store,
		Source:   source,
		Notifier: notifier,
		interval: interval,
		clock:    systemClock{},
	}
}

// SetClock replaces the timestamp source. Used by tests.
func (r *RatesUpdater) SetClock(clock Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start spawns the driver goroutine. Calling Start while running is a no-op.
func (r *RatesUpdater) Start() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if r.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.drive(ctx)

	r.Logger.Info("%s : started, interval %s, source %s", r.Name, r.interval, r.Source.GetName())
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels the driver and waits until it, including any in-flight
// fetch, has returned.
func (r *RatesUpdater) Stop() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.cancel()
	r.wg.Wait()

	r.Logger.Info("%s : stopped", r.Name)
	return nil
}

// -----------------------------------------------------------------------------

// IsRunning reports whether the driver goroutine is active.
func (r *RatesUpdater) IsRunning() bool {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.running
}

// -----------------------------------------------------------------------------

// drive runs a cycle, then sleeps one interval, until ctx is cancelled.
func (r *RatesUpdater) drive(ctx context.Context) {
	defer r.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := r.safeCycle(ctx); err != nil && ctx.Err() == nil {
			r.Logger.Warning("%s : rates update failed: %v", r.Name, err)
		}
		timer.Reset(r.interval)
	}
}

// -----------------------------------------------------------------------------

// safeCycle turns a panic inside a cycle into a recorded error.
func (r *RatesUpdater) safeCycle(ctx context.Context) (inserted int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cycle panic: %v", rec)
			r.setError(err.Error())
		}
	}()
	return r.cycle(ctx)
}

// -----------------------------------------------------------------------------

// RunOnce executes one cycle synchronously and returns how many observations
// were stored. Only storage failures are returned as errors; fetch problems
// are reported through Status.
func (r *RatesUpdater) RunOnce(ctx context.Context) (int, error) {
	return r.safeCycle(ctx)
}

// -----------------------------------------------------------------------------

// Status returns a snapshot of the updater state.
func (r *RatesUpdater) Status() models.MSchedulerStatus {
	running := r.IsRunning()

	r.mu.Lock()
	defer r.mu.Unlock()

	status := models.MSchedulerStatus{
		Running:         running,
		IntervalSeconds: int(r.interval / time.Second),
		SourceURL:       r.Source.GetEndPoint(),
		SourceName:      r.Source.GetName(),
		LastInserted:    r.lastInserted,
	}
	if r.lastRun != nil {
		t := *r.lastRun
		status.LastRun = &t
	}
	if r.lastError != nil {
		e := *r.lastError
		status.LastError = &e
	}
	if r.lastNote != nil {
		n := *r.lastNote
		status.LastNote = &n
	}
	return status
}

// -----------------------------------------------------------------------------
// Cycle
// -----------------------------------------------------------------------------

func (r *RatesUpdater) cycle(ctx context.Context) (int, error) {
	// 1. Timestamp strictly after the previous cycle
	fetchedAt := r.begin()

	// 2. Seed an empty registry
	if err := r.seedDefaults(ctx); err != nil {
		r.setError(err.Error())
		return 0, err
	}

	// 3. Enabled symbols only
	symbols, err := r.Store.ListTrackedSymbols(ctx, true)
	if err != nil {
		err = fmt.Errorf("list enabled symbols: %w", err)
		r.setError(err.Error())
		return 0, err
	}
	if len(symbols) == 0 {
		r.finish(0, nil, ptr(noteNothingEnabled))
		return 0, nil
	}
	codes := make([]string, 0, len(symbols))
	for _, s := range symbols {
		codes = append(codes, strings.ToUpper(s.Code))
	}

	// 4. Batch fetch; partial failures are already absorbed by the source
	prices, fetchErr := r.Source.FetchPrices(ctx, codes)
	if len(prices) == 0 {
		msg := errNoPrices
		if fetchErr != nil {
			msg = fetchErr.Error()
		}
		r.finish(0, ptr(msg), nil)
		r.Logger.Warning("%s : %s", r.Name, msg)
		return 0, nil
	}

	// 5. Persist one observation per resolved symbol
	inserted := make([]models.MPriceObservation, 0, len(prices))
	for _, code := range codes {
		raw, ok := prices[code]
		if !ok || raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			r.Logger.Warning("%s : skipping %s, unparseable price %q", r.Name, code, raw)
			continue
		}

		obs, err := r.Store.RecordObservation(ctx, code, models.DefaultNominal, value, fetchedAt, r.Source.GetName())
		if errors.Is(err, models.ErrDuplicateObservation) {
			r.Logger.Debug("%s : %s already recorded at %s", r.Name, code, fetchedAt.Format(time.RFC3339Nano))
			continue
		}
		if err != nil {
			err = fmt.Errorf("record observation %s: %w", code, err)
			r.setError(err.Error())
			return 0, err
		}
		inserted = append(inserted, *obs)
	}

	// 6. Notify once, after everything is persisted
	if len(inserted) > 0 {
		r.notify(ctx, models.NewEvent(models.EventRatesUpdated, inserted))
	}

	// 7. Outcome
	var note *string
	if len(inserted) == 0 {
		note = ptr(noteNothingSaved)
	}
	r.finish(len(inserted), nil, note)
	r.Logger.Info("%s : stored %d/%d prices at %s", r.Name, len(inserted), len(codes), fetchedAt.Format(time.RFC3339Nano))
	return len(inserted), nil
}

// -----------------------------------------------------------------------------

// notify delivers the cycle event. The rows are already stored, so a failing
// notifier is logged and never changes the cycle outcome.
func (r *RatesUpdater) notify(ctx context.Context, event *models.MEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Logger.Error("%s : notifier panic: %v", r.Name, rec)
		}
	}()
	r.Notifier.Notify(ctx, event)
}

// -----------------------------------------------------------------------------

// seedDefaults inserts the default symbols when the registry is empty.
// Losing an insert race to another writer is not an error.
func (r *RatesUpdater) seedDefaults(ctx context.Context) error {
	existing, err := r.Store.ListTrackedSymbols(ctx, false)
	if err != nil {
		return fmt.Errorf("list tracked symbols: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, d := range models.DefaultSymbols {
		_, err := r.Store.InsertTrackedSymbol(ctx, d.Code, d.Name, true)
		if errors.Is(err, models.ErrDuplicateSymbol) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", d.Code, err)
		}
	}
	r.Logger.Info("%s : registry empty, seeded %d default symbols", r.Name, len(models.DefaultSymbols))
	return nil
}

// -----------------------------------------------------------------------------
// Status helpers
// -----------------------------------------------------------------------------

// begin captures the cycle timestamp and clears the previous outcome.
func (r *RatesUpdater) begin() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now().UTC().Truncate(time.Microsecond)
	if r.lastRun != nil && !now.After(*r.lastRun) {
		now = r.lastRun.Add(time.Microsecond)
	}
	r.lastRun = &now
	r.lastError = nil
	r.lastNote = nil
	return now
}

func (r *RatesUpdater) finish(inserted int, errMsg, note *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastInserted = inserted
	r.lastError = errMsg
	r.lastNote = note
}

func (r *RatesUpdater) setError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastInserted = 0
	r.lastError = &msg
}

func ptr(s string) *string { return &s }

// discardNotifier drops every event.
type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, *models.MEvent) {}
