package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"rates-ingestor/src/interfaces"
	"rates-ingestor/src/logger"
	"rates-ingestor/src/models"
	"rates-ingestor/src/serializers"
	"rates-ingestor/src/utils"
)

// ErrNoPrices is returned when no symbol could be resolved.
var ErrNoPrices = errors.New("no prices fetched, check network and symbols")

// maxBodyBytes bounds a single ticker response.
const maxBodyBytes = 64 * 1024

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// Binance implements interfaces.IQuoteSource against the public ticker
// endpoint: GET <endpoint>?symbol=BTCUSDT -> {"symbol":"BTCUSDT","price":"..."}.
type Binance struct {
	Name       string
	Endpoint   string
	Timeout    time.Duration
	Logger     *logger.Logger
	Client     *http.Client
	Serializer interfaces.ISerializer
}

// -----------------------------------------------------------------------------
// CONSTRUCTOR AND REGISTRATION
// -----------------------------------------------------------------------------

func init() {
	// Register the source with the name "binance" for dynamic creation
	if err := Register("binance", NewBinance); err != nil {
		fmt.Printf("Error registering Binance quote source: %v\n", err)
	}
}

// -----------------------------------------------------------------------------

// NewBinance creates a new Binance quote source.
// Matches the interfaces.IQuoteSourceConstructor signature.
func NewBinance(cfg models.MRatesConfig, log *logger.Logger) (interfaces.IQuoteSource, error) {
	if cfg.SourceURL == "" {
		return nil, fmt.Errorf("binance: source url cannot be empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	name := cfg.SourceName
	if name == "" {
		name = "binance"
	}

	return &Binance{
		Name:       name,
		Endpoint:   cfg.SourceURL,
		Timeout:    timeout,
		Logger:     log,
		Client:     &http.Client{},
		Serializer: serializers.NewJSONSerializer(),
	}, nil
}

// -----------------------------------------------------------------------------
// IQuoteSource IMPLEMENTATION
// -----------------------------------------------------------------------------

// GetName returns the source name
func (b *Binance) GetName() string {
	return b.Name
}

// -----------------------------------------------------------------------------

// GetEndPoint returns the ticker endpoint URL
func (b *Binance) GetEndPoint() string {
	return b.Endpoint
}

// -----------------------------------------------------------------------------

// FetchPrices queries every symbol concurrently. Symbols whose request fails,
// returns a non-2xx status or carries no string "price" are dropped.
// An empty input falls back to the default symbol set.
func (b *Binance) FetchPrices(ctx context.Context, symbols []string) (map[string]string, error) {
	// 1. Normalize the input
	normalized := utils.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		normalized = models.DefaultSymbolCodes()
	}

	// 2. The endpoint must be usable before fanning out
	base, err := url.Parse(b.Endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing scheme or host")
		}
		return map[string]string{}, fmt.Errorf("%s : invalid endpoint '%s': %w", b.Name, b.Endpoint, err)
	}

	// 3. One request per symbol
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		prices = make(map[string]string, len(normalized))
	)
	for _, symbol := range normalized {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			price, err := b.fetchOne(ctx, base, symbol)
			if err != nil {
				b.Logger.Debug("%s : skipping %s: %v", b.Name, symbol, err)
				return
			}
			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	if len(prices) == 0 {
		return map[string]string{}, ErrNoPrices
	}
	return prices, nil
}

// -----------------------------------------------------------------------------
// HELPERS
// -----------------------------------------------------------------------------

// fetchOne performs one ticker request under the per-request timeout.
func (b *Binance) fetchOne(ctx context.Context, base *url.URL, symbol string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	u := *base
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var ticker map[string]any
	if err := b.Serializer.Unmarshal(body, &ticker); err != nil {
		return "", err
	}
	if ticker == nil {
		return "", fmt.Errorf("body is not an object")
	}
	price, ok := ticker["price"].(string)
	if !ok {
		return "", fmt.Errorf("missing string price")
	}
	return price, nil
}
