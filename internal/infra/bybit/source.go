// Package bybit reads best bid/ask from the Bybit v5 market API.
package bybit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
)

const (
	BaseURL     = "https://api.bybit.com"
	tickersPath = "/v5/market/tickers"
)

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string       `json:"category"`
		List     []tickerData `json:"list"`
	} `json:"result"`
	Time int64 `json:"time"`
}

type tickerData struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
	LastPrice string `json:"lastPrice"`
}

// Source is a domain.PriceSource for one Bybit category.
type Source struct {
	venue      domain.Venue
	url        string
	symbols    map[string]string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSource creates a Bybit source. Perpetual maps to the "linear" category.
func NewSource(cfg infra.ExchangeConfig, httpClient *http.Client, maxRetries int) *Source {
	venue := cfg.Venue()
	baseURL := BaseURL
	if cfg.RestURL != "" {
		baseURL = strings.TrimRight(cfg.RestURL, "/")
	}
	category := "spot"
	if venue.Market == domain.MarketPerpetual {
		category = "linear"
	}
	return &Source{
		venue:      venue,
		url:        baseURL + tickersPath + "?category=" + category,
		symbols:    cfg.Symbols,
		httpClient: httpClient,
		maxRetries: maxRetries,
		logger:     slog.Default().With("module", "bybit", "venue", venue.String()),
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

// FetchQuotes implements domain.PriceSource.
func (s *Source) FetchQuotes(ctx context.Context, assets []string) ([]domain.Quote, error) {
	var resp tickersResponse
	if err := infra.GetJSON(ctx, s.httpClient, s.url, nil, s.maxRetries, &resp); err != nil {
		return nil, domain.NewFetchError(s.venue, "request", err)
	}
	if resp.RetCode != 0 {
		return nil, &domain.FetchError{
			Venue: s.venue,
			Op:    "request",
			Err:   fmt.Errorf("bybit business error: code=%d msg=%s", resp.RetCode, resp.RetMsg),
		}
	}
	ts := infra.MillisToTime(resp.Time, s.now())

	bySymbol := make(map[string]tickerData, len(resp.Result.List))
	for _, d := range resp.Result.List {
		bySymbol[d.Symbol] = d
	}

	quotes := make([]domain.Quote, 0, len(assets))
	var errs []error
	for _, asset := range assets {
		d, ok := bySymbol[s.Symbol(asset)]
		if !ok {
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "lookup", domain.ErrSymbolNotListed))
			continue
		}
		q, err := infra.ParseQuote(s.venue, asset, d.Bid1Price, d.Ask1Price, ts)
		if err != nil {
			s.logger.Warn("Skipping malformed quote", slog.String("asset", asset), slog.Any("error", err))
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "normalize", err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, errors.Join(errs...)
}
