// Package upbit reads the top of the Upbit USDT-market orderbook.
package upbit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"

	"github.com/shopspring/decimal"
)

const (
	BaseURL       = "https://api.upbit.com"
	orderbookPath = "/v1/orderbook"
	marketPrefix  = "USDT-"
)

// orderbookResponse represents one market of the Upbit orderbook answer.
type orderbookResponse struct {
	Market         string          `json:"market"` // USDT-BTC
	Timestamp      int64           `json:"timestamp"`
	OrderbookUnits []orderbookUnit `json:"orderbook_units"`
}

type orderbookUnit struct {
	AskPrice decimal.Decimal `json:"ask_price"`
	BidPrice decimal.Decimal `json:"bid_price"`
	AskSize  decimal.Decimal `json:"ask_size"`
	BidSize  decimal.Decimal `json:"bid_size"`
}

// Source is the Upbit spot price source. Every asset is requested in one
// orderbook call.
type Source struct {
	venue      domain.Venue
	baseURL    string
	symbols    map[string]string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSource creates the Upbit spot source.
func NewSource(cfg infra.ExchangeConfig, httpClient *http.Client, maxRetries int) *Source {
	baseURL := BaseURL
	if cfg.RestURL != "" {
		baseURL = strings.TrimRight(cfg.RestURL, "/")
	}
	venue := cfg.Venue()
	return &Source{
		venue:      venue,
		baseURL:    baseURL,
		symbols:    cfg.Symbols,
		httpClient: httpClient,
		maxRetries: maxRetries,
		logger:     slog.Default().With("module", "upbit", "venue", venue.String()),
		now:        time.Now,
	}
}

// Venue implements domain.PriceSource.
func (s *Source) Venue() domain.Venue {
	return s.venue
}

// Symbol maps BTC to USDT-BTC unless overridden.
func (s *Source) Symbol(asset string) string {
	return infra.SymbolFor(s.symbols, asset, func(a string) string { return marketPrefix + a })
}

// FetchQuotes implements domain.PriceSource.
func (s *Source) FetchQuotes(ctx context.Context, assets []string) ([]domain.Quote, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	codes := make([]string, len(assets))
	for i, a := range assets {
		codes[i] = s.Symbol(a)
	}

	var books []orderbookResponse
	reqURL := s.baseURL + orderbookPath + "?markets=" + url.QueryEscape(strings.Join(codes, ","))
	if err := infra.GetJSON(ctx, s.httpClient, reqURL, nil, s.maxRetries, &books); err != nil {
		return nil, domain.NewFetchError(s.venue, "request", err)
	}
	received := s.now()

	byMarket := make(map[string]orderbookResponse, len(books))
	for _, b := range books {
		byMarket[b.Market] = b
	}

	quotes := make([]domain.Quote, 0, len(assets))
	var errs []error
	for i, asset := range assets {
		book, ok := byMarket[codes[i]]
		if !ok {
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "lookup", domain.ErrSymbolNotListed))
			continue
		}
		if len(book.OrderbookUnits) == 0 {
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "normalize", domain.ErrNonPositivePrice))
			continue
		}
		top := book.OrderbookUnits[0]
		q, err := domain.NewQuote(s.venue, asset, top.BidPrice, top.AskPrice, infra.MillisToTime(book.Timestamp, received))
		if err != nil {
			s.logger.Warn("Skipping malformed quote", slog.String("asset", asset), slog.Any("error", err))
			errs = append(errs, domain.NewAssetFetchError(s.venue, asset, "normalize", err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, errors.Join(errs...)
}
