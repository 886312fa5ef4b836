package service

import (
	"errors"
	"fmt"

	"arbscan/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	grossPlaces   = 8
	percentPlaces = 6
)

var hundred = decimal.NewFromInt(100)

// FeeModel prices a buy/sell pair net of trading fees. It holds no mutable
// state and is safe for concurrent use.
type FeeModel struct {
	schedule *domain.FeeSchedule
	basis    domain.FeeBasis
}

// NewFeeModel binds the fee schedule and the per-leg liquidity assumption.
func NewFeeModel(schedule *domain.FeeSchedule, basis domain.FeeBasis) *FeeModel {
	return &FeeModel{schedule: schedule, basis: basis}
}

// Basis returns the configured per-leg liquidity.
func (m *FeeModel) Basis() domain.FeeBasis {
	return m.basis
}

// NetProfit buys notional USD at buy.Ask and sells at sell.Bid.
//
//	gross      = notional * (sell.bid - buy.ask) / buy.ask, rounded to 8 dp
//	fees       = notional * (buyRate + sellRate)
//	net        = gross - fees
//	netPercent = net / notional * 100, rounded to 6 dp
func (m *FeeModel) NetProfit(buy, sell domain.Quote, notional decimal.Decimal) (domain.ProfitBreakdown, error) {
	if !buy.Ask.IsPositive() {
		return domain.ProfitBreakdown{}, fmt.Errorf("%w: buy ask %s", domain.ErrNonPositivePrice, buy.Ask)
	}
	if !notional.IsPositive() {
		return domain.ProfitBreakdown{}, errors.New("notional must be positive")
	}

	buyRate, err := m.schedule.Lookup(buy.Venue())
	if err != nil {
		return domain.ProfitBreakdown{}, err
	}
	sellRate, err := m.schedule.Lookup(sell.Venue())
	if err != nil {
		return domain.ProfitBreakdown{}, err
	}
	buyFee := buyRate.For(m.basis.Buy)
	sellFee := sellRate.For(m.basis.Sell)

	gross := notional.Mul(sell.Bid.Sub(buy.Ask)).Div(buy.Ask).Round(grossPlaces)
	fees := notional.Mul(buyFee.Add(sellFee))
	net := gross.Sub(fees)
	netPercent := net.Mul(hundred).Div(notional).Round(percentPlaces)

	return domain.ProfitBreakdown{
		Gross:       gross,
		Fees:        fees,
		Net:         net,
		NetPercent:  netPercent,
		BuyFeeRate:  buyFee,
		SellFeeRate: sellFee,
	}, nil
}
