// Package binance reads best bid/ask from Binance spot and USDT-M futures.
package binance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
)

const (
	SpotBaseURL    = "https://api.binance.com"
	FuturesBaseURL = "https://fapi.binance.com"

	spotBookTickerPath    = "/api/v3/ticker/bookTicker"
	futuresBookTickerPath = "/fapi/v1/ticker/bookTicker"
)

// bookTicker is one row of the bookTicker endpoint. Futures rows carry a
// transaction time, spot rows do not.
type bookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
	Time     int64  `json:"time"`
}

// Source is a domain.PriceSource for one Binance market.
type Source struct {
	venue      domain.Venue
	baseURL    string
	path       string
	symbols    map[string]string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSource creates a Binance source for the configured market.
func NewSource(cfg infra.ExchangeConfig, httpClient *http.Client, maxRetries int) *Source {
	venue := cfg.Venue()
	baseURL, path := SpotBaseURL, spotBookTickerPath
	if venue.Market == domain.MarketPerpetual {
		baseURL, path = FuturesBaseURL, futuresBookTickerPath
	}
	if cfg.RestURL != "" {
		baseURL = strings.TrimRight(cfg.RestURL, "/")
	}
	return &Source{
		venue:      venue,
		baseURL:    baseURL,
		path:       path,
		symbols:    cfg.Symbols,
		httpClient: httpClient,
		maxRetries: maxRetries,
		logger:     slog.Default().With("module", "binance", "venue", venue.String()),
		now:        time.Now,
	}
}

// Venue implements domain.PriceSource.
func (s *Source) Venue() domain.Venue {
	return s.venue
}

// Symbol maps BTC to BTCUSDT unless overridden.
func (s *Source) Symbol(asset string) string {
	return infra.SymbolFor(s.symbols, asset, func(a string) string { return a + "USDT" })
}

// FetchQuotes loads the whole book ticker in one request and picks the
// configured assets out of it.
func (s *Source) FetchQuotes(ctx context.Context, assets []string) ([]domain.Quote, error) {
	var rows []bookTicker
	if err := infra.GetJSON(ctx, s.httpClient, s.baseURL+s.path, nil, s.maxRetries, &rows); err != nil {
		return nil, domain.NewFetchError(s.venue, "request", err)
	}
	received := s.now()

	bySymbol := make(map[string]bookTicker, len(rows))
	for _, r := range rows {
		bySymbol[r.Symbol] = r
	}

	quotes := make([]domain.Quote, 0, len(assets))
	var errs []error
	for _, asset := range assets {
		row, ok := bySymbol[s.Symbol(asset)]
		if !ok {
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "lookup", domain.ErrSymbolNotListed))
			continue
		}
		q, err := infra.ParseQuote(s.venue, asset, row.BidPrice, row.AskPrice, infra.MillisToTime(row.Time, received))
		if err != nil {
			s.logger.Warn("Skipping malformed quote", slog.String("asset", asset), slog.Any("error", err))
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "normalize", err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, errors.Join(errs...)
}
