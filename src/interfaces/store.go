package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// IPriceStore is the subset of persistence the rates updater needs.
type IPriceStore interface {
	// ListTrackedSymbols returns symbols ordered by code; enabledOnly filters disabled ones.
	ListTrackedSymbols(ctx context.Context, enabledOnly bool) ([]models.MTrackedSymbol, error)

	// InsertTrackedSymbol creates a symbol. Returns models.ErrDuplicateSymbol on code conflict.
	InsertTrackedSymbol(ctx context.Context, code, name string, enabled bool) (*models.MTrackedSymbol, error)

	// RecordObservation persists one price sample.
	// Returns models.ErrDuplicateObservation when the (symbol, fetchedAt, source) key exists.
	RecordObservation(ctx context.Context, symbol string, nominal int, value decimal.Decimal, fetchedAt time.Time, source string) (*models.MPriceObservation, error)
}

// -----------------------------------------------------------------------------

// IPriceRepository is the full store surface used by the REST layer.
type IPriceRepository interface {
	IPriceStore

	GetTrackedSymbol(ctx context.Context, id uint) (*models.MTrackedSymbol, error)
	UpdateTrackedSymbol(ctx context.Context, id uint, patch models.MSymbolPatch) (*models.MTrackedSymbol, error)
	DeleteTrackedSymbol(ctx context.Context, id uint) error

	// ListObservations returns observations newest first, optionally filtered by symbol.
	ListObservations(ctx context.Context, symbol string, limit int) ([]models.MPriceObservation, error)

	// LatestObservation returns the newest observation of a symbol, or nil when none exists.
	LatestObservation(ctx context.Context, symbol string) (*models.MPriceObservation, error)

	// Health reports whether the backing storage answers.
	Health(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// -----------------------------------------------------------------------------

// ILatestCache keeps the newest observation per symbol.
type ILatestCache interface {
	// Put stores obs unless a newer observation of the same symbol is cached.
	Put(ctx context.Context, obs *models.MPriceObservation) error

	// Get returns the cached observation; found is false on a miss.
	Get(ctx context.Context, symbol string) (obs *models.MPriceObservation, found bool, err error)

	Health(ctx context.Context) error
	Close() error
}
