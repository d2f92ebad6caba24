package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// MemoryStore is an in-process store used when no database is configured and
// by tests. It enforces the same unique keys as the postgres schema.
type MemoryStore struct {
	mu           sync.RWMutex
	nextSymbolID uint
	nextObsID    uint
	symbols      map[uint]*models.MTrackedSymbol
	codes        map[string]uint
	observations []models.MPriceObservation
	keys         map[models.ObservationKey]struct{}
	now          func() time.Time
}

// -----------------------------------------------------------------------------

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		symbols: make(map[uint]*models.MTrackedSymbol),
		codes:   make(map[string]uint),
		keys:    make(map[models.ObservationKey]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// ListTrackedSymbols returns copies ordered by code.
func (m *MemoryStore) ListTrackedSymbols(ctx context.Context, enabledOnly bool) ([]models.MTrackedSymbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.MTrackedSymbol, 0, len(m.symbols))
	for _, s := range m.symbols {
		if enabledOnly && !s.Enabled {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// -----------------------------------------------------------------------------

// InsertTrackedSymbol creates a symbol with an uppercased code.
func (m *MemoryStore) InsertTrackedSymbol(ctx context.Context, code, name string, enabled bool) (*models.MTrackedSymbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[code]; exists {
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicateSymbol, code)
	}
	m.nextSymbolID++
	now := m.now()
	s := &models.MTrackedSymbol{
		ID:        m.nextSymbolID,
		Code:      code,
		Name:      name,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.symbols[s.ID] = s
	m.codes[code] = s.ID

	cp := *s
	return &cp, nil
}

// -----------------------------------------------------------------------------

// GetTrackedSymbol returns a symbol by id.
func (m *MemoryStore) GetTrackedSymbol(ctx context.Context, id uint) (*models.MTrackedSymbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.symbols[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// -----------------------------------------------------------------------------

// UpdateTrackedSymbol applies the non-nil fields of patch.
func (m *MemoryStore) UpdateTrackedSymbol(ctx context.Context, id uint, patch models.MSymbolPatch) (*models.MTrackedSymbol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.symbols[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Enabled != nil {
		s.Enabled = *patch.Enabled
	}
	s.UpdatedAt = m.now()

	cp := *s
	return &cp, nil
}

// -----------------------------------------------------------------------------

// DeleteTrackedSymbol removes a symbol. Its observations are kept.
func (m *MemoryStore) DeleteTrackedSymbol(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.symbols[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(m.codes, s.Code)
	delete(m.symbols, id)
	return nil
}

// -----------------------------------------------------------------------------

// RecordObservation appends one sample unless its key already exists.
func (m *MemoryStore) RecordObservation(ctx context.Context, symbol string, nominal int, value decimal.Decimal, fetchedAt time.Time, source string) (*models.MPriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obs := models.MPriceObservation{
		SymbolCode: strings.ToUpper(symbol),
		Nominal:    nominal,
		Value:      value,
		FetchedAt:  fetchedAt.UTC(),
		Source:     source,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := obs.Key()
	if _, exists := m.keys[key]; exists {
		return nil, fmt.Errorf("%w: %s@%s", models.ErrDuplicateObservation, obs.SymbolCode, obs.FetchedAt.Format(time.RFC3339Nano))
	}
	m.nextObsID++
	obs.ID = m.nextObsID
	obs.CreatedAt = m.now()
	m.observations = append(m.observations, obs)
	m.keys[key] = struct{}{}

	return &obs, nil
}

// -----------------------------------------------------------------------------

// ListObservations returns observations newest first.
func (m *MemoryStore) ListObservations(ctx context.Context, symbol string, limit int) ([]models.MPriceObservation, error) {
	symbol = strings.ToUpper(symbol)

	m.mu.RLock()
	out := make([]models.MPriceObservation, 0, len(m.observations))
	for _, o := range m.observations {
		if symbol != "" && o.SymbolCode != symbol {
			continue
		}
		out = append(out, o)
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// LatestObservation returns the newest observation of symbol, or nil.
func (m *MemoryStore) LatestObservation(ctx context.Context, symbol string) (*models.MPriceObservation, error) {
	list, err := m.ListObservations(ctx, symbol, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// -----------------------------------------------------------------------------

// Health always succeeds for the in-process store.
func (m *MemoryStore) Health(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// -----------------------------------------------------------------------------

func sortNewestFirst(list []models.MPriceObservation) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].FetchedAt.Equal(list[j].FetchedAt) {
			return list[i].FetchedAt.After(list[j].FetchedAt)
		}
		return list[i].ID > list[j].ID
	})
}
