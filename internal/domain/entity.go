package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityRow is the SQL mirror of an opportunity record. Rows are only
// ever inserted.
type OpportunityRow struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	CycleID          string          `gorm:"type:varchar(36);index" json:"cycle_id"`
	DetectedAt       time.Time       `gorm:"index" json:"detected_at"`
	BaseCurrency     string          `gorm:"type:varchar(16);index" json:"base_currency"`
	BuyExchange      string          `gorm:"type:varchar(32)" json:"buy_exchange"`
	BuyMarket        string          `gorm:"type:varchar(16)" json:"buy_market"`
	SellExchange     string          `gorm:"type:varchar(32)" json:"sell_exchange"`
	SellMarket       string          `gorm:"type:varchar(16)" json:"sell_market"`
	BuyPrice         decimal.Decimal `gorm:"type:varchar(40)" json:"buy_price"`
	SellPrice        decimal.Decimal `gorm:"type:varchar(40)" json:"sell_price"`
	NotionalUSD      decimal.Decimal `gorm:"type:varchar(40)" json:"notional_usd"`
	GrossProfitUSD   decimal.Decimal `gorm:"type:varchar(40)" json:"gross_profit_usd"`
	TotalFeesUSD     decimal.Decimal `gorm:"type:varchar(40)" json:"total_fees_usd"`
	NetProfitUSD     decimal.Decimal `gorm:"type:varchar(40)" json:"net_profit_usd"`
	NetProfitPercent decimal.Decimal `gorm:"type:varchar(40)" json:"net_profit_percent"`
	CreatedAt        time.Time       `json:"created_at"`
}

// CycleRow summarises one scan cycle.
type CycleRow struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StartedAt     time.Time `gorm:"index" json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	Assets        int       `json:"assets"`
	Venues        int       `json:"venues"`
	Quotes        int       `json:"quotes"`
	Opportunities int       `json:"opportunities"`
	SkippedPairs  int       `json:"skipped_pairs"`
	FetchErrors   int       `json:"fetch_errors"`
	Faults        int       `json:"faults"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewOpportunityRow converts an opportunity to its SQL row.
func NewOpportunityRow(o Opportunity) OpportunityRow {
	return OpportunityRow{
		CycleID:          o.CycleID,
		DetectedAt:       o.DetectedAt.UTC(),
		BaseCurrency:     o.Asset,
		BuyExchange:      o.BuyVenue.Exchange,
		BuyMarket:        string(o.BuyVenue.Market),
		SellExchange:     o.SellVenue.Exchange,
		SellMarket:       string(o.SellVenue.Market),
		BuyPrice:         o.BuyPrice,
		SellPrice:        o.SellPrice,
		NotionalUSD:      o.Notional,
		GrossProfitUSD:   o.Profit.Gross,
		TotalFeesUSD:     o.Profit.Fees,
		NetProfitUSD:     o.Profit.Net,
		NetProfitPercent: o.Profit.NetPercent,
	}
}

// NewCycleRow summarises a cycle result.
func NewCycleRow(r *ScanCycleResult) CycleRow {
	return CycleRow{
		ID:            r.ID,
		StartedAt:     r.StartedAt.UTC(),
		DurationMS:    r.Duration.Milliseconds(),
		Assets:        len(r.Assets),
		Venues:        len(r.Venues),
		Quotes:        len(r.Quotes),
		Opportunities: len(r.Opportunities),
		SkippedPairs:  len(r.Skipped),
		FetchErrors:   len(r.FetchErrors()),
		Faults:        len(r.Faults()),
	}
}
