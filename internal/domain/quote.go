package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketType distinguishes spot books from perpetual futures books.
type MarketType string

const (
	MarketSpot      MarketType = "spot"
	MarketPerpetual MarketType = "perpetual"
)

// ParseMarketType accepts "spot" and "perpetual" (plus the common aliases
// "perp", "swap" and "futures").
func ParseMarketType(s string) (MarketType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return MarketSpot, nil
	case "perpetual", "perp", "swap", "futures":
		return MarketPerpetual, nil
	default:
		return "", fmt.Errorf("unknown market type %q", s)
	}
}

// Venue is one price source: an exchange at one market type.
type Venue struct {
	Exchange string     `json:"exchange"`
	Market   MarketType `json:"market"`
}

// String returns "exchange:market", e.g. "binance:perpetual".
func (v Venue) String() string {
	return v.Exchange + ":" + string(v.Market)
}

// Quote is a best bid/ask snapshot for one asset on one venue.
// It is immutable once created by NewQuote.
type Quote struct {
	Exchange  string          `json:"exchange"`
	Asset     string          `json:"asset"`  // Unified base currency (e.g., "BTC")
	Market    MarketType      `json:"market"` // spot | perpetual
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewQuote validates the book and builds a Quote.
// Bid and ask must be positive and the book must not be crossed (ask >= bid).
func NewQuote(venue Venue, asset string, bid, ask decimal.Decimal, ts time.Time) (Quote, error) {
	if !bid.IsPositive() || !ask.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s %s bid=%s ask=%s", ErrNonPositivePrice, venue, asset, bid, ask)
	}
	if ask.LessThan(bid) {
		return Quote{}, fmt.Errorf("%w: %s %s crossed book bid=%s ask=%s", ErrInvalidQuote, venue, asset, bid, ask)
	}
	return Quote{
		Exchange:  venue.Exchange,
		Asset:     asset,
		Market:    venue.Market,
		Bid:       bid,
		Ask:       ask,
		Timestamp: ts.UTC(),
	}, nil
}

// Venue returns the venue the quote was fetched from.
func (q Quote) Venue() Venue {
	return Venue{Exchange: q.Exchange, Market: q.Market}
}

// Spread returns ask - bid on the venue itself.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// QuoteKey identifies a quote within one cycle.
type QuoteKey struct {
	Venue Venue
	Asset string
}

// QuoteBook holds every quote fetched in one cycle.
type QuoteBook map[QuoteKey]Quote

// Put stores q, replacing any earlier quote for the same venue and asset.
func (b QuoteBook) Put(q Quote) {
	b[QuoteKey{Venue: q.Venue(), Asset: q.Asset}] = q
}

// Get returns the quote for asset on venue, if one was fetched.
func (b QuoteBook) Get(venue Venue, asset string) (Quote, bool) {
	q, ok := b[QuoteKey{Venue: venue, Asset: asset}]
	return q, ok
}

// ForAsset returns the quotes for asset sorted by venue for stable output.
func (b QuoteBook) ForAsset(asset string) []Quote {
	out := make([]Quote, 0, 4)
	for k, q := range b {
		if k.Asset == asset {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Venue().String() < out[j].Venue().String()
	})
	return out
}
