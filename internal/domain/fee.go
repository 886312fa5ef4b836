package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Liquidity selects which side of the fee schedule applies to a leg.
type Liquidity string

const (
	LiquidityTaker Liquidity = "taker"
	LiquidityMaker Liquidity = "maker"
)

// ParseLiquidity accepts "taker" or "maker". An empty string means taker.
func ParseLiquidity(s string) (Liquidity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "taker":
		return LiquidityTaker, nil
	case "maker":
		return LiquidityMaker, nil
	default:
		return "", fmt.Errorf("unknown liquidity %q", s)
	}
}

// FeeBasis chooses the fee rate applied to the buy and the sell leg.
type FeeBasis struct {
	Buy  Liquidity
	Sell Liquidity
}

// DefaultFeeBasis assumes both legs cross the book.
func DefaultFeeBasis() FeeBasis {
	return FeeBasis{Buy: LiquidityTaker, Sell: LiquidityTaker}
}

// FeeRate holds fractional fee rates (0.001 = 0.1%).
type FeeRate struct {
	Taker decimal.Decimal `json:"taker"`
	Maker decimal.Decimal `json:"maker"`
}

// For returns the rate for the given liquidity.
func (r FeeRate) For(l Liquidity) decimal.Decimal {
	if l == LiquidityMaker {
		return r.Maker
	}
	return r.Taker
}

// FeeSchedule maps venues to fee rates. It is read-only after construction
// and safe for concurrent use.
type FeeSchedule struct {
	rates map[Venue]FeeRate
}

// NewFeeSchedule copies rates and rejects negative values.
func NewFeeSchedule(rates map[Venue]FeeRate) (*FeeSchedule, error) {
	copied := make(map[Venue]FeeRate, len(rates))
	for v, r := range rates {
		if r.Taker.IsNegative() || r.Maker.IsNegative() {
			return nil, fmt.Errorf("negative fee rate for %s", v)
		}
		copied[v] = r
	}
	return &FeeSchedule{rates: copied}, nil
}

// Lookup returns the rate for a venue or an error wrapping ErrFeeNotFound.
func (s *FeeSchedule) Lookup(v Venue) (FeeRate, error) {
	r, ok := s.rates[v]
	if !ok {
		return FeeRate{}, fmt.Errorf("%w: %s", ErrFeeNotFound, v)
	}
	return r, nil
}

// Has reports whether the schedule covers the venue.
func (s *FeeSchedule) Has(v Venue) bool {
	_, ok := s.rates[v]
	return ok
}
