package app

import (
	"fmt"
	"net/http"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
	"arbscan/internal/infra/binance"
	"arbscan/internal/infra/bitget"
	"arbscan/internal/infra/bitstamp"
	"arbscan/internal/infra/bybit"
	"arbscan/internal/infra/upbit"
)

// SourceFactory builds the price source of one configured venue.
type SourceFactory func(cfg infra.ExchangeConfig, httpClient *http.Client, maxRetries int) domain.PriceSource

// sourceFactories maps exchange ids to their REST clients.
var sourceFactories = map[string]SourceFactory{
	domain.ExchangeBinance: func(cfg infra.ExchangeConfig, c *http.Client, n int) domain.PriceSource {
		return binance.NewSource(cfg, c, n)
	},
	domain.ExchangeBybit: func(cfg infra.ExchangeConfig, c *http.Client, n int) domain.PriceSource {
		return bybit.NewSource(cfg, c, n)
	},
	domain.ExchangeBitstamp: func(cfg infra.ExchangeConfig, c *http.Client, n int) domain.PriceSource {
		return bitstamp.NewSource(cfg, c, n)
	},
	domain.ExchangeBitget: func(cfg infra.ExchangeConfig, c *http.Client, n int) domain.PriceSource {
		return bitget.NewClient(cfg, c, n)
	},
	domain.ExchangeUpbit: func(cfg infra.ExchangeConfig, c *http.Client, n int) domain.PriceSource {
		return upbit.NewSource(cfg, c, n)
	},
}

// BuildSources creates one price source per configured exchange entry.
// The config must already be validated.
func BuildSources(cfg *infra.Config, httpClient *http.Client) ([]domain.PriceSource, error) {
	sources := make([]domain.PriceSource, 0, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		factory, ok := sourceFactories[ex.Venue().Exchange]
		if !ok {
			return nil, &domain.ConfigError{Field: "exchanges." + ex.ID, Err: fmt.Errorf("%w: %s", domain.ErrUnknownExchange, ex.ID)}
		}
		sources = append(sources, factory(ex, httpClient, cfg.Scanner.MaxRetries))
	}
	return sources, nil
}

// missingFees lists configured venues without a fee schedule entry. Their
// pairs fail evaluation at runtime.
func missingFees(venues []domain.Venue, schedule *domain.FeeSchedule) []domain.Venue {
	var out []domain.Venue
	for _, v := range venues {
		if !schedule.Has(v) {
			out = append(out, v)
		}
	}
	return out
}
