package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
	"rates-ingestor/src/utils"
)

// -----------------------------------------------------------------------------

// GormStore persists tracked symbols and price observations in PostgreSQL.
// The (symbol_code, fetched_at, source) unique index is created by AutoMigrate.
type GormStore struct {
	name   string
	db     *gorm.DB
	logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewGormStore opens the connection pool and migrates the schema.
// A storage outage here is fatal for the caller.
func NewGormStore(ctx context.Context, dsn string, log *logger.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres at %s: %w", utils.MaskURL(dsn), err)
	}

	s := &GormStore{name: "GormStore", db: db, logger: log}

	if err := db.WithContext(ctx).AutoMigrate(&models.MTrackedSymbol{}, &models.MPriceObservation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s.logger.Info("%s : connected to %s, schema ready", s.name, utils.MaskURL(dsn))
	return s, nil
}

// -----------------------------------------------------------------------------

// ListTrackedSymbols returns symbols ordered by code.
func (s *GormStore) ListTrackedSymbols(ctx context.Context, enabledOnly bool) ([]models.MTrackedSymbol, error) {
	var symbols []models.MTrackedSymbol
	q := s.db.WithContext(ctx).Order("code")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Find(&symbols).Error; err != nil {
		return nil, fmt.Errorf("list tracked symbols: %w", err)
	}
	return symbols, nil
}

// -----------------------------------------------------------------------------

// InsertTrackedSymbol creates a symbol with an uppercased code.
func (s *GormStore) InsertTrackedSymbol(ctx context.Context, code, name string, enabled bool) (*models.MTrackedSymbol, error) {
	symbol := &models.MTrackedSymbol{
		Code:    strings.ToUpper(strings.TrimSpace(code)),
		Name:    name,
		Enabled: enabled,
	}
	// Select forces the zero value of Enabled to be written.
	err := s.db.WithContext(ctx).Select("Code", "Name", "Enabled", "CreatedAt", "UpdatedAt").Create(symbol).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicateSymbol, symbol.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("insert tracked symbol %s: %w", symbol.Code, err)
	}
	return symbol, nil
}

// -----------------------------------------------------------------------------

// GetTrackedSymbol returns a symbol by id.
func (s *GormStore) GetTrackedSymbol(ctx context.Context, id uint) (*models.MTrackedSymbol, error) {
	var symbol models.MTrackedSymbol
	err := s.db.WithContext(ctx).First(&symbol, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked symbol %d: %w", id, err)
	}
	return &symbol, nil
}

// -----------------------------------------------------------------------------

// UpdateTrackedSymbol applies the non-nil fields of patch.
func (s *GormStore) UpdateTrackedSymbol(ctx context.Context, id uint, patch models.MSymbolPatch) (*models.MTrackedSymbol, error) {
	symbol, err := s.GetTrackedSymbol(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Enabled != nil {
		updates["enabled"] = *patch.Enabled
	}
	if len(updates) == 0 {
		return symbol, nil
	}

	if err := s.db.WithContext(ctx).Model(symbol).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update tracked symbol %d: %w", id, err)
	}
	return s.GetTrackedSymbol(ctx, id)
}

// -----------------------------------------------------------------------------

// DeleteTrackedSymbol removes a symbol. Its observations are kept.
func (s *GormStore) DeleteTrackedSymbol(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.MTrackedSymbol{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete tracked symbol %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------

// RecordObservation inserts one price sample.
func (s *GormStore) RecordObservation(ctx context.Context, symbol string, nominal int, value decimal.Decimal, fetchedAt time.Time, source string) (*models.MPriceObservation, error) {
	obs := &models.MPriceObservation{
		SymbolCode: strings.ToUpper(symbol),
		Nominal:    nominal,
		Value:      value,
		FetchedAt:  fetchedAt.UTC(),
		Source:     source,
	}
	err := s.db.WithContext(ctx).Create(obs).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s@%s", models.ErrDuplicateObservation, obs.SymbolCode, obs.FetchedAt.Format(time.RFC3339Nano))
	}
	if err != nil {
		return nil, fmt.Errorf("record observation %s: %w", obs.SymbolCode, err)
	}
	return obs, nil
}

// -----------------------------------------------------------------------------

// ListObservations returns observations newest first.
func (s *GormStore) ListObservations(ctx context.Context, symbol string, limit int) ([]models.MPriceObservation, error) {
	var observations []models.MPriceObservation
	q := s.db.WithContext(ctx).Order("fetched_at DESC, id DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol_code = ?", strings.ToUpper(symbol))
	}
	if err := q.Find(&observations).Error; err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	return observations, nil
}

// -----------------------------------------------------------------------------

// LatestObservation returns the newest observation of symbol, or nil.
func (s *GormStore) LatestObservation(ctx context.Context, symbol string) (*models.MPriceObservation, error) {
	var obs models.MPriceObservation
	err := s.db.WithContext(ctx).
		Where("symbol_code = ?", strings.ToUpper(symbol)).
		Order("fetched_at DESC, id DESC").
		Take(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation %s: %w", symbol, err)
	}
	return &obs, nil
}

// -----------------------------------------------------------------------------

// Health pings the database.
func (s *GormStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// -----------------------------------------------------------------------------

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
