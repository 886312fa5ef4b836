// Package bitstamp reads best bid/ask from the Bitstamp v2 ticker.
package bitstamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
)

const (
	BaseURL    = "https://www.bitstamp.net"
	tickerPath = "/api/v2/ticker/"
)

type tickerResponse struct {
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Last      string `json:"last"`
	Timestamp string `json:"timestamp"` // unix seconds
}

// Source is the Bitstamp spot price source. Bitstamp answers per pair, so one
// request is made per asset and failures stay per asset.
type Source struct {
	venue      domain.Venue
	baseURL    string
	symbols    map[string]string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSource creates the Bitstamp spot source.
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
		logger:     slog.Default().With("module", "bitstamp", "venue", venue.String()),
		now:        time.Now,
	}
}

// Venue implements domain.PriceSource.
func (s *Source) Venue() domain.Venue {
	return s.venue
}

// Symbol maps BTC to btcusd unless overridden.
func (s *Source) Symbol(asset string) string {
	return infra.SymbolFor(s.symbols, asset, func(a string) string { return strings.ToLower(a) + "usd" })
}

// FetchQuotes implements domain.PriceSource. When every asset fails with the
// same transport error the venue is reported once.
func (s *Source) FetchQuotes(ctx context.Context, assets []string) ([]domain.Quote, error) {
	quotes := make([]domain.Quote, 0, len(assets))
	var errs []error
	for _, asset := range assets {
		if ctx.Err() != nil {
			errs = append(errs, domain.NewFetchError(s.venue, "request", ctx.Err()))
			break
		}
		q, err := s.fetchOne(ctx, asset)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		if venueErr := s.sameTransportError(errs); venueErr != nil {
			return nil, venueErr
		}
	}
	return quotes, errors.Join(errs...)
}

// sameTransportError collapses per-asset request failures into one venue
// error when they all share the same cause.
func (s *Source) sameTransportError(errs []error) error {
	if len(errs) < 2 {
		return nil
	}
	var first *domain.FetchError
	for _, err := range errs {
		var fe *domain.FetchError
		if !errors.As(err, &fe) || fe.Op != "request" || fe.Asset == "" {
			return nil
		}
		if first == nil {
			first = fe
			continue
		}
		if transportCause(fe.Err) != transportCause(first.Err) {
			return nil
		}
	}
	return domain.NewFetchError(s.venue, "request", first.Err)
}

// transportCause strips the per-asset URL from a request error.
func transportCause(err error) string {
	var statusErr *infra.HTTPStatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("status %d", statusErr.StatusCode)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func (s *Source) fetchOne(ctx context.Context, asset string) (domain.Quote, error) {
	var resp tickerResponse
	url := s.baseURL + tickerPath + s.Symbol(asset) + "/"
	if err := infra.GetJSON(ctx, s.httpClient, url, nil, s.maxRetries, &resp); err != nil {
		var statusErr *infra.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.Quote{}, domain.NewAssetFetchError(s.venue, asset, "lookup", domain.ErrSymbolNotListed)
		}
		return domain.Quote{}, &domain.FetchError{Venue: s.venue, Asset: asset, Op: "request", Err: err, Retriable: true}
	}

	ts := s.now()
	if resp.Timestamp != "" {
		ts = infra.ParseMillis(resp.Timestamp+"000", ts)
	}
	q, err := infra.ParseQuote(s.venue, asset, resp.Bid, resp.Ask, ts)
	if err != nil {
		s.logger.Warn("Skipping malformed quote", slog.String("asset", asset), slog.Any("error", err))
		return domain.Quote{}, domain.NewAssetFetchError(s.venue, asset, "normalize", err)
	}
	return q, nil
}
