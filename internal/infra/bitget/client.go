package bitget

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

// Client is the Bitget V2 REST price source (Boundary Layer).
// One request per cycle loads every ticker of the market.
type Client struct {
	venue      domain.Venue
	baseURL    string
	path       string
	query      string
	symbols    map[string]string
	httpClient *http.Client
	maxRetries int
	signer     *Signer
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a new Bitget price source.
func NewClient(cfg infra.ExchangeConfig, httpClient *http.Client, maxRetries int) *Client {
	venue := cfg.Venue()
	baseURL := BaseURL
	if cfg.RestURL != "" {
		baseURL = strings.TrimRight(cfg.RestURL, "/")
	}
	path, query := spotTickersPath, ""
	if venue.Market == domain.MarketPerpetual {
		path, query = futuresTickersPath, "productType="+productTypeUSDT
	}

	return &Client{
		venue:      venue,
		baseURL:    baseURL,
		path:       path,
		query:      query,
		symbols:    cfg.Symbols,
		httpClient: httpClient,
		maxRetries: maxRetries,
		signer:     NewSigner(cfg.AccessKey, cfg.SecretKey, cfg.Passphrase),
		logger:     slog.Default().With("module", "bitget_client", "venue", venue.String()),
		now:        time.Now,
	}
}

// Venue implements domain.PriceSource.
func (c *Client) Venue() domain.Venue {
	return c.venue
}

// Symbol maps BTC to BTCUSDT unless overridden.
func (c *Client) Symbol(asset string) string {
	return infra.SymbolFor(c.symbols, asset, func(a string) string { return a + "USDT" })
}

// FetchQuotes implements domain.PriceSource.
func (c *Client) FetchQuotes(ctx context.Context, assets []string) ([]domain.Quote, error) {
	var apiResp tickersResponse
	if err := c.doRequest(ctx, &apiResp); err != nil {
		return nil, domain.NewFetchError(c.venue, "request", err)
	}
	if apiResp.Code != successCode {
		return nil, &domain.FetchError{
			Venue: c.venue,
			Op:    "request",
			Err:   fmt.Errorf("bitget business error: code=%s msg=%s", apiResp.Code, apiResp.Msg),
		}
	}
	received := c.now()

	bySymbol := make(map[string]tickerData, len(apiResp.Data))
	for _, d := range apiResp.Data {
		bySymbol[d.Symbol] = d
	}

	quotes := make([]domain.Quote, 0, len(assets))
	var errs []error
	for _, asset := range assets {
		d, ok := bySymbol[c.Symbol(asset)]
		if !ok {
			errs = append(errs, domain.NewAssetFetchError(c.venue, asset, "lookup", domain.ErrSymbolNotListed))
			continue
		}
		q, err := infra.ParseQuote(c.venue, asset, d.BidPr, d.AskPr, infra.ParseMillis(d.Ts, received))
		if err != nil {
			c.logger.Warn("Skipping malformed quote", slog.String("asset", asset), slog.Any("error", err))
			errs = append(errs, domain.NewAssetFetchError(c.venue, asset, "normalize", err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, errors.Join(errs...)
}

// doRequest signs the request when credentials are present.
func (c *Client) doRequest(ctx context.Context, out any) error {
	reqURL := c.baseURL + c.path
	if c.query != "" {
		reqURL += "?" + c.query
	}

	var headers map[string]string
	if c.signer.Enabled() {
		headers = c.signer.GenerateHeaders(http.MethodGet, c.path, c.query, "")
	}
	return infra.GetJSON(ctx, c.httpClient, reqURL, headers, c.maxRetries, out)
}
