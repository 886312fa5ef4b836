package service

import (
	"context"
	"testing"
	"time"

	"arbscan/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	binancePerp = domain.Venue{Exchange: domain.ExchangeBinance, Market: domain.MarketPerpetual}
	bybitPerp   = domain.Venue{Exchange: domain.ExchangeBybit, Market: domain.MarketPerpetual}
	bitstamp    = domain.Venue{Exchange: domain.ExchangeBitstamp, Market: domain.MarketSpot}
	binanceSpot = domain.Venue{Exchange: domain.ExchangeBinance, Market: domain.MarketSpot}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustQuote(t *testing.T, v domain.Venue, asset, bid, ask string) domain.Quote {
	t.Helper()
	q, err := domain.NewQuote(v, asset, d(bid), d(ask), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("NewQuote: %v", err)
	}
	return q
}

func flatSchedule(t *testing.T, rate string, venues ...domain.Venue) *domain.FeeSchedule {
	t.Helper()
	rates := make(map[domain.Venue]domain.FeeRate, len(venues))
	for _, v := range venues {
		rates[v] = domain.FeeRate{Taker: d(rate), Maker: d(rate)}
	}
	s, err := domain.NewFeeSchedule(rates)
	if err != nil {
		t.Fatalf("NewFeeSchedule: %v", err)
	}
	return s
}

// fakeSource is a scripted domain.PriceSource.
type fakeSource struct {
	venue  domain.Venue
	quotes []domain.Quote
	err    error
	delay  time.Duration
	panics bool
}

func (f *fakeSource) Venue() domain.Venue { return f.venue }

func (f *fakeSource) FetchQuotes(ctx context.Context, assets []string) ([]domain.Quote, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, domain.NewFetchError(f.venue, "request", ctx.Err())
		}
	}
	return f.quotes, f.err
}
