package infra

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"arbscan/internal/domain"

	"github.com/shopspring/decimal"
)

// ParseQuote turns a venue's textual bid/ask into a validated quote.
// Empty fields are reported as missing prices.
func ParseQuote(venue domain.Venue, asset, bid, ask string, ts time.Time) (domain.Quote, error) {
	if strings.TrimSpace(bid) == "" || strings.TrimSpace(ask) == "" {
		return domain.Quote{}, fmt.Errorf("%w: missing bid or ask", domain.ErrNonPositivePrice)
	}
	b, err := decimal.NewFromString(bid)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: bid %q: %v", domain.ErrInvalidQuote, bid, err)
	}
	a, err := decimal.NewFromString(ask)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: ask %q: %v", domain.ErrInvalidQuote, ask, err)
	}
	return domain.NewQuote(venue, asset, b, a, ts)
}

// MillisToTime converts a venue millisecond timestamp, falling back to
// fallback when the venue sent none.
func MillisToTime(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}

// ParseMillis is MillisToTime for venues that send the timestamp as text.
func ParseMillis(s string, fallback time.Time) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fallback
	}
	return MillisToTime(ms, fallback)
}

// SymbolFor maps a unified asset to the venue instrument. A configured
// override wins over the venue's default rule.
func SymbolFor(overrides map[string]string, asset string, rule func(string) string) string {
	if s, ok := overrides[asset]; ok && s != "" {
		return s
	}
	return rule(asset)
}
