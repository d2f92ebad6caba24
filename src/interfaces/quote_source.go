package interfaces

import (
	"context"

	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
)

// -----------------------------------------------------------------------------

// IQuoteSourceConstructor defines the function signature for creating a new IQuoteSource.
type IQuoteSourceConstructor func(cfg models.MRatesConfig, log *logger.Logger) (IQuoteSource, error)

// -----------------------------------------------------------------------------

// IQuoteSource fetches current prices from an external HTTP price feed.
type IQuoteSource interface {
	// GetName returns the source name recorded on every observation.
	GetName() string

	// GetEndPoint returns the feed URL (for display/logging).
	GetEndPoint() string

	// FetchPrices queries every symbol concurrently and returns symbol -> decimal
	// price string for the ones that succeeded. One failing symbol never
	// affects the others.
	FetchPrices(ctx context.Context, symbols []string) (map[string]string, error)
}
