package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ProfitBreakdown is the fee-adjusted result of buying on one venue and
// selling on another for a fixed notional.
type ProfitBreakdown struct {
	Gross       decimal.Decimal
	Fees        decimal.Decimal
	Net         decimal.Decimal
	NetPercent  decimal.Decimal
	BuyFeeRate  decimal.Decimal
	SellFeeRate decimal.Decimal
}

// IsProfitable returns true if the net profit is strictly positive.
func (p ProfitBreakdown) IsProfitable() bool {
	return p.Net.IsPositive()
}

// Opportunity is a directional exchange pair that cleared the profit threshold.
type Opportunity struct {
	CycleID    string
	Asset      string
	BuyVenue   Venue
	SellVenue  Venue
	BuyPrice   decimal.Decimal // ask on the buy venue
	SellPrice  decimal.Decimal // bid on the sell venue
	Notional   decimal.Decimal // USD size both legs are evaluated at
	Profit     ProfitBreakdown
	DetectedAt time.Time
}

// OpportunityRecord is the wire shape of one opportunity, shared by the
// opportunity log, the Redis publisher and the live stream.
// Field order matters: consumers read the log line by line.
type OpportunityRecord struct {
	Timestamp        string      `json:"timestamp"`
	BaseCurrency     string      `json:"base_currency"`
	BuyExchange      string      `json:"buy_exchange"`
	SellExchange     string      `json:"sell_exchange"`
	NetProfitUSD     json.Number `json:"net_profit_usd"`
	NetProfitPercent json.Number `json:"net_profit_percent"`
	CycleID          string      `json:"cycle_id"`
	BuyMarket        MarketType  `json:"buy_market"`
	SellMarket       MarketType  `json:"sell_market"`
	BuyPrice         json.Number `json:"buy_price"`
	SellPrice        json.Number `json:"sell_price"`
	NotionalUSD      json.Number `json:"notional_usd"`
	GrossProfitUSD   json.Number `json:"gross_profit_usd"`
	TotalFeesUSD     json.Number `json:"total_fees_usd"`
}

// Record converts the opportunity to its wire shape.
// Money fields are emitted as JSON numbers carrying the exact decimal text.
func (o Opportunity) Record() OpportunityRecord {
	return OpportunityRecord{
		Timestamp:        o.DetectedAt.UTC().Format(time.RFC3339Nano),
		BaseCurrency:     o.Asset,
		BuyExchange:      o.BuyVenue.Exchange,
		SellExchange:     o.SellVenue.Exchange,
		NetProfitUSD:     json.Number(o.Profit.Net.String()),
		NetProfitPercent: json.Number(o.Profit.NetPercent.String()),
		CycleID:          o.CycleID,
		BuyMarket:        o.BuyVenue.Market,
		SellMarket:       o.SellVenue.Market,
		BuyPrice:         json.Number(o.BuyPrice.String()),
		SellPrice:        json.Number(o.SellPrice.String()),
		NotionalUSD:      json.Number(o.Notional.String()),
		GrossProfitUSD:   json.Number(o.Profit.Gross.String()),
		TotalFeesUSD:     json.Number(o.Profit.Fees.String()),
	}
}

// SkippedPair is an ordered venue pair that could not be evaluated.
type SkippedPair struct {
	Asset  string
	Buy    Venue
	Sell   Venue
	Reason string
}

// AssetSummary is the best bid and best ask across venues for one asset.
type AssetSummary struct {
	Asset         string
	Quotes        int
	BestBid       *Quote // nil when no venue quoted the asset
	BestAsk       *Quote
	GrossSpread   decimal.Decimal // (best bid - best ask) / best ask * 100
	Opportunities int
}

// ScanCycleResult is everything one cycle produced. It is handed to the sinks
// and then dropped.
type ScanCycleResult struct {
	ID            string
	StartedAt     time.Time
	Duration      time.Duration
	Assets        []string
	Venues        []Venue
	Quotes        QuoteBook
	Opportunities []Opportunity // sorted by net percent, best first
	Summaries     []AssetSummary
	Skipped       []SkippedPair
	Errors        []error
}

// FetchErrors returns the per-venue fetch failures of the cycle.
func (r *ScanCycleResult) FetchErrors() []*FetchError {
	var out []*FetchError
	for _, err := range r.Errors {
		var fe *FetchError
		if errors.As(err, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

// Faults returns every error that is not a fetch failure.
func (r *ScanCycleResult) Faults() []error {
	var out []error
	for _, err := range r.Errors {
		var fe *FetchError
		if !errors.As(err, &fe) {
			out = append(out, err)
		}
	}
	return out
}
