package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// MTrackedSymbol is an asset pair the ingestor monitors (e.g. BTCUSDT).
type MTrackedSymbol struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Enabled   bool      `gorm:"not null" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (MTrackedSymbol) TableName() string {
	return "tracked_symbols"
}

// -----------------------------------------------------------------------------

// MPriceObservation is one persisted price sample.
// (SymbolCode, FetchedAt, Source) is unique; rows are never mutated.
type MPriceObservation struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SymbolCode string          `gorm:"size:20;not null;index;uniqueIndex:uq_observation_key,priority:1" json:"currency_code"`
	Nominal    int             `gorm:"not null" json:"nominal"`
	Value      decimal.Decimal `gorm:"type:numeric;not null" json:"value"`
	FetchedAt  time.Time       `gorm:"not null;index;uniqueIndex:uq_observation_key,priority:2" json:"fetched_at"`
	Source     string          `gorm:"size:200;not null;uniqueIndex:uq_observation_key,priority:3" json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName overrides the gorm table name.
func (MPriceObservation) TableName() string {
	return "price_observations"
}

// ObservationKey identifies an observation for the uniqueness rule.
type ObservationKey struct {
	SymbolCode string
	FetchedAt  time.Time
	Source     string
}

// Key returns the uniqueness key of the observation.
func (o *MPriceObservation) Key() ObservationKey {
	return ObservationKey{
		SymbolCode: o.SymbolCode,
		FetchedAt:  o.FetchedAt.UTC(),
		Source:     o.Source,
	}
}

// -----------------------------------------------------------------------------

// MSymbolPatch holds the optional fields of a tracked symbol update.
type MSymbolPatch struct {
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// DefaultNominal is the unit count of every observation from single-unit feeds.
const DefaultNominal = 1

// -----------------------------------------------------------------------------

// MDefaultSymbol is a pair seeded into an empty registry.
type MDefaultSymbol struct {
	Code string
	Name string
}

// DefaultSymbols is the seed set, in seeding order.
var DefaultSymbols = []MDefaultSymbol{
	{Code: "BTCUSDT", Name: "Bitcoin"},
	{Code: "ETHUSDT", Name: "Ethereum"},
	{Code: "BNBUSDT", Name: "BNB"},
	{Code: "SOLUSDT", Name: "Solana"},
	{Code: "XRPUSDT", Name: "XRP"},
	{Code: "DOGEUSDT", Name: "Dogecoin"},
	{Code: "ADAUSDT", Name: "Cardano"},
	{Code: "TONUSDT", Name: "Toncoin"},
}

// DefaultSymbolCodes returns the codes of DefaultSymbols.
func DefaultSymbolCodes() []string {
	codes := make([]string, 0, len(DefaultSymbols))
	for _, s := range DefaultSymbols {
		codes = append(codes, s.Code)
	}
	return codes
}
